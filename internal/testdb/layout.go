package testdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtension is the file extension of test sources.
const DefaultExtension = ".mq"

// ErrNotInDatabase is wrapped by Lookup errors for suites or cases that
// were never added.
var ErrNotInDatabase = errors.New("not in test database")

// PathError reports a case path that does not follow the
// <root>/<suite>/<case><ext> layout.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid test case path %s: %s", e.Path, e.Reason)
}

// Layout maps suites and cases onto the filesystem: one directory per
// suite directly under Root, one file per case inside it.
type Layout struct {
	Root      string
	Extension string
}

func (l Layout) ext() string {
	if l.Extension == "" {
		return DefaultExtension
	}
	return l.Extension
}

// SourcePath returns the file backing t.
func (l Layout) SourcePath(t Target) string {
	return filepath.Join(l.Root, t.Suite.Name, t.Case.Name)
}

// Split validates path and returns its suite and case names.
func (l Layout) Split(path string) (suite, name string, err error) {
	abs, err := realpath(path)
	if err != nil {
		return "", "", &PathError{Path: path, Reason: err.Error()}
	}
	root, err := realpath(l.Root)
	if err != nil {
		return "", "", &PathError{Path: path, Reason: fmt.Sprintf("test root: %v", err)}
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", &PathError{Path: path, Reason: fmt.Sprintf("not inside test root %s", l.Root)}
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", "", &PathError{Path: path, Reason: "expected <suite>/<case" + l.ext() + "> directly under the test root"}
	}
	if filepath.Ext(parts[1]) != l.ext() {
		return "", "", &PathError{Path: path, Reason: "test case must have extension " + l.ext()}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", "", &PathError{Path: path, Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return "", "", &PathError{Path: path, Reason: "test case is not a file"}
	}

	return parts[0], parts[1], nil
}

func realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Discovery is what a Discover call added.
type Discovery struct {
	Suites []string
	Cases  []Target
}

// Discover adds every suite directory and case file under the root that
// the database does not know yet. Existing entries are untouched. Names
// are visited in sorted order.
func Discover(db *Database, l Layout) (Discovery, error) {
	var found Discovery

	dirs, err := os.ReadDir(l.Root)
	if err != nil {
		return found, fmt.Errorf("failed to scan test root: %w", err)
	}
	for _, d := range sortedEntries(dirs) {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		if _, created := db.AddSuite(d.Name()); created {
			found.Suites = append(found.Suites, d.Name())
		}
	}

	for _, s := range db.Suites {
		entries, err := os.ReadDir(filepath.Join(l.Root, s.Name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return found, fmt.Errorf("failed to scan suite %s: %w", s.Name, err)
		}
		for _, e := range sortedEntries(entries) {
			if !e.Type().IsRegular() || filepath.Ext(e.Name()) != l.ext() {
				continue
			}
			if c, created := db.AddCase(s, e.Name()); created {
				found.Cases = append(found.Cases, Target{Suite: s, Case: c})
			}
		}
	}

	return found, nil
}

func sortedEntries(entries []os.DirEntry) []os.DirEntry {
	return slices.SortedFunc(slices.Values(entries), func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
}

// Add registers the case at path, creating its suite if needed. added is
// false when the case already existed; the existing case is returned.
func Add(db *Database, l Layout, path string) (t Target, added bool, err error) {
	suiteName, caseName, err := l.Split(path)
	if err != nil {
		return Target{}, false, err
	}
	s, _ := db.AddSuite(suiteName)
	c, added := db.AddCase(s, caseName)
	return Target{Suite: s, Case: c}, added, nil
}

// Lookup finds the existing case at path. Unknown suites and cases are
// reported with an error wrapping ErrNotInDatabase and are never created.
func Lookup(db *Database, l Layout, path string) (Target, error) {
	suiteName, caseName, err := l.Split(path)
	if err != nil {
		return Target{}, err
	}
	s := db.Suite(suiteName)
	if s == nil {
		return Target{}, fmt.Errorf("suite %s: %w", suiteName, ErrNotInDatabase)
	}
	c := s.Case(caseName)
	if c == nil {
		return Target{}, fmt.Errorf("case %s in suite %s: %w", caseName, suiteName, ErrNotInDatabase)
	}
	return Target{Suite: s, Case: c}, nil
}
