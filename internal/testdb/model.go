package testdb

import (
	"github.com/roach88/regress/internal/harness"
)

// Database is the ordered collection of suites. It owns its suites, which
// own their cases.
type Database struct {
	Suites []*Suite

	dirty bool
}

// Suite is a named, ordered collection of cases backed by one directory
// under the test root.
type Suite struct {
	Name  string  `json:"name"`
	Cases []*Case `json:"cases"`
}

// Case is one test source file and its recorded expectation.
type Case struct {
	Name  string   `json:"name"`
	Stdin []string `json:"stdin_lines"`

	// Expected is flattened into the case object on disk.
	harness.Result
}

// Target addresses one case within its suite.
type Target struct {
	Suite *Suite
	Case  *Case
}

// String returns "suite/case".
func (t Target) String() string {
	return t.Suite.Name + "/" + t.Case.Name
}

// New returns an empty database.
func New() *Database {
	return &Database{}
}

// newCase returns a case that has never been recorded.
func newCase(name string) *Case {
	return &Case{Name: name, Stdin: []string{}, Result: harness.NewResult()}
}

// Dirty reports whether the database changed since it was loaded.
func (db *Database) Dirty() bool {
	return db.dirty
}

// Suite returns the suite with the given name, or nil.
func (db *Database) Suite(name string) *Suite {
	for _, s := range db.Suites {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// AddSuite appends an empty suite unless one with that name exists. It
// returns the suite and whether it was created.
func (db *Database) AddSuite(name string) (*Suite, bool) {
	if s := db.Suite(name); s != nil {
		return s, false
	}
	s := &Suite{Name: name, Cases: []*Case{}}
	db.Suites = append(db.Suites, s)
	db.dirty = true
	return s, true
}

// AddCase appends a never-recorded case to s unless one with that name
// exists. It returns the case and whether it was created.
func (db *Database) AddCase(s *Suite, name string) (*Case, bool) {
	if c := s.Case(name); c != nil {
		return c, false
	}
	c := newCase(name)
	s.Cases = append(s.Cases, c)
	db.dirty = true
	return c, true
}

// Record replaces the expectation of c with res and reports which parts of
// it changed. Recording is the only way an expectation is modified.
func (db *Database) Record(c *Case, res harness.Result) []string {
	res.Normalize()
	changes := harness.Changes(c.Result, res)
	c.Result = res
	db.dirty = true
	return changes
}

// All returns every case in suite-then-case order.
func (db *Database) All() []Target {
	var targets []Target
	for _, s := range db.Suites {
		for _, c := range s.Cases {
			targets = append(targets, Target{Suite: s, Case: c})
		}
	}
	return targets
}

// Len returns the total number of cases.
func (db *Database) Len() int {
	n := 0
	for _, s := range db.Suites {
		n += len(s.Cases)
	}
	return n
}

// Case returns the case with the given name, or nil.
func (s *Suite) Case(name string) *Case {
	for _, c := range s.Cases {
		if c.Name == name {
			return c
		}
	}
	return nil
}
