// Package config loads the optional regress.yaml file that sets where the
// tests, the database and the interpreter live.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no file is named.
const DefaultFile = "regress.yaml"

// Config mirrors regress.yaml. Relative paths are resolved by Resolve.
type Config struct {
	// Root is the project root and the interpreter's working directory.
	Root string `yaml:"root"`

	// TestsDir holds one directory per suite. Relative to Root.
	TestsDir string `yaml:"tests_dir"`

	// Database is the test database document. Relative to TestsDir.
	Database string `yaml:"database"`

	// Interpreter is the binary under test. Relative to Root.
	Interpreter string `yaml:"interpreter"`

	// QuietFlag is passed after the source path.
	QuietFlag string `yaml:"quiet_flag"`

	// Extension selects test source files.
	Extension string `yaml:"extension"`

	// EventPort names the MIDI input port captures listen on.
	EventPort string `yaml:"event_port"`

	// CaseTimeout kills an interpreter that runs longer. Zero disables it.
	CaseTimeout time.Duration `yaml:"case_timeout"`

	// History is the SQLite run history. Relative to Root; empty disables it.
	History string `yaml:"history"`

	// BuildCommand is run from Root when the interpreter does not exist.
	// An empty list disables building.
	BuildCommand []string `yaml:"build_command"`
}

// Default returns the layout used by the Musique repository.
func Default() Config {
	return Config{
		Root:         ".",
		TestsDir:     "regression-tests",
		Database:     "test_db.json",
		Interpreter:  "bin/linux/debug/musique",
		QuietFlag:    "-q",
		Extension:    ".mq",
		EventPort:    "Midi Through",
		BuildCommand: []string{"make", "debug"},
	}
}

// Load reads path over the defaults. Unknown keys are rejected. When
// optional is set a missing file returns the defaults.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if optional && errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// A relative root in a config file is relative to that file.
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.TestsDir == "" {
		return fmt.Errorf("tests_dir is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Interpreter == "" {
		return fmt.Errorf("interpreter is required")
	}
	if c.Extension == "" || c.Extension[0] != '.' {
		return fmt.Errorf("extension must start with a dot, got %q", c.Extension)
	}
	if c.CaseTimeout < 0 {
		return fmt.Errorf("case_timeout must not be negative")
	}
	return nil
}

// Paths are the absolute locations derived from a Config.
type Paths struct {
	Root        string
	Tests       string
	Database    string
	Interpreter string
	History     string
}

// Resolve turns the configured paths into absolute ones.
func (c Config) Resolve() (Paths, error) {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve root: %w", err)
	}

	p := Paths{
		Root:        root,
		Tests:       under(root, c.TestsDir),
		Interpreter: under(root, c.Interpreter),
	}
	p.Database = under(p.Tests, c.Database)
	if c.History != "" {
		p.History = under(root, c.History)
	}
	return p, nil
}

func under(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
