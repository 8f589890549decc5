package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/regress/internal/config"
	"github.com/roach88/regress/internal/harness"
	"github.com/roach88/regress/internal/midi"
	"github.com/roach88/regress/internal/session"
	"github.com/roach88/regress/internal/testdb"
)

var errInterpreterMissing = errors.New("interpreter not found")

// env is the loaded configuration and test database shared by commands.
type env struct {
	opts   *RootOptions
	cfg    config.Config
	paths  config.Paths
	db     *testdb.Database
	layout testdb.Layout
	log    *slog.Logger
}

// loadEnv reads the config file, applies flag overrides and loads the test
// database. Any failure is a command error.
func loadEnv(opts *RootOptions) (*env, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.Load(opts.ConfigFile, false)
	} else {
		cfg, err = config.Load(config.DefaultFile, true)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if err := applyOverrides(&cfg, opts); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flag", err)
	}

	paths, err := cfg.Resolve()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve paths", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	db, err := testdb.Load(paths.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load test database", err)
	}
	log.Debug("test database loaded", "path", paths.Database, "suites", len(db.Suites), "cases", db.Len())

	return &env{
		opts:   opts,
		cfg:    cfg,
		paths:  paths,
		db:     db,
		layout: testdb.Layout{Root: paths.Tests, Extension: cfg.Extension},
		log:    log,
	}, nil
}

// applyOverrides replaces config values with flags that were set. Flag
// paths are relative to the working directory.
func applyOverrides(cfg *config.Config, opts *RootOptions) error {
	overrides := []struct {
		flag string
		dst  *string
	}{
		{opts.Root, &cfg.Root},
		{opts.TestsDir, &cfg.TestsDir},
		{opts.Database, &cfg.Database},
		{opts.Interpreter, &cfg.Interpreter},
		{opts.History, &cfg.History},
	}
	for _, o := range overrides {
		if o.flag == "" {
			continue
		}
		abs, err := filepath.Abs(o.flag)
		if err != nil {
			return err
		}
		*o.dst = abs
	}
	return nil
}

// ports returns the event port opener.
func (e *env) ports() midi.Opener {
	if e.opts.Ports != nil {
		return e.opts.Ports
	}
	return midi.RTOpener{PortName: e.cfg.EventPort}
}

// driver prepares an execution driver. The interpreter is built when it is
// missing and a build command is configured. With capture set the event
// port is opened once up front so an unavailable port fails before any
// case runs.
func (e *env) driver(ctx context.Context, buildOut io.Writer, capture bool) (*harness.Driver, error) {
	if err := e.ensureInterpreter(ctx, buildOut); err != nil {
		return nil, err
	}

	ports := e.ports()
	if capture {
		p, err := ports.Open()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "cannot capture MIDI events", err)
		}
		if err := p.Close(); err != nil {
			e.log.Warn("closing event port failed", "error", err)
		}
	}

	return &harness.Driver{
		Interpreter: e.paths.Interpreter,
		WorkDir:     e.paths.Root,
		QuietFlag:   e.cfg.QuietFlag,
		Ports:       ports,
		CaseTimeout: e.cfg.CaseTimeout,
		Logger:      e.log,
	}, nil
}

func (e *env) ensureInterpreter(ctx context.Context, out io.Writer) error {
	if _, err := os.Stat(e.paths.Interpreter); err == nil {
		return nil
	}

	missing := fmt.Errorf("%w: %s", errInterpreterMissing, e.paths.Interpreter)
	build := e.cfg.BuildCommand
	if len(build) == 0 {
		return WrapExitError(ExitCommandError, "cannot run tests", missing)
	}

	e.log.Info("interpreter missing, building", "command", build, "dir", e.paths.Root)
	c := exec.CommandContext(ctx, build[0], build[1:]...)
	c.Dir = e.paths.Root
	c.Stdout = out
	c.Stderr = out
	if err := c.Run(); err != nil {
		return WrapExitError(ExitCommandError, "build command failed", err)
	}

	if _, err := os.Stat(e.paths.Interpreter); err != nil {
		return WrapExitError(ExitCommandError, "build finished", missing)
	}
	return nil
}

// session wires a workflow session over the loaded database.
func (e *env) session(out io.Writer, executor session.Executor) *session.Session {
	cmp := harness.DefaultComparator
	if e.opts.LegacyEventMatch {
		cmp.Strategy = harness.AnyMatch
	}
	return &session.Session{
		DB:         e.db,
		Layout:     e.layout,
		Executor:   executor,
		Comparator: cmp,
		Out:        out,
		Logger:     e.log,
		SkipEvents: e.opts.SkipEvents,
		IDs:        e.opts.IDs,
		Now:        e.opts.Now,
	}
}

// save writes the database back if anything changed.
func (e *env) save() error {
	if !e.db.Dirty() {
		return nil
	}
	if err := e.db.Save(e.paths.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to save test database", err)
	}
	e.log.Debug("test database saved", "path", e.paths.Database)
	return nil
}

// needsCapture reports whether running targets will listen for events.
func needsCapture(targets []testdb.Target, skipEvents, force bool) bool {
	if force {
		return true
	}
	if skipEvents {
		return false
	}
	for _, t := range targets {
		if t.Case.CapturesEvents() {
			return true
		}
	}
	return false
}

// formatter returns the output formatter for cmd.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
