package session

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/regress/internal/testdb"
)

// Filter keeps the targets whose "suite/case" name matches pattern. An
// empty pattern keeps everything.
func Filter(targets []testdb.Target, pattern string) ([]testdb.Target, error) {
	if pattern == "" {
		return targets, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid filter pattern %q", pattern)
	}

	kept := []testdb.Target{}
	for _, t := range targets {
		ok, err := doublestar.Match(pattern, t.String())
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
		if ok {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// Resolve maps case paths to existing cases in the order given. Paths that
// do not name a known case are returned as misses so the caller can report
// them; a structurally invalid path is an error.
func Resolve(db *testdb.Database, l testdb.Layout, paths []string) (found []testdb.Target, misses []error, err error) {
	for _, p := range paths {
		t, lerr := testdb.Lookup(db, l, p)
		switch {
		case lerr == nil:
			found = append(found, t)
		case isNotInDatabase(lerr):
			misses = append(misses, lerr)
		default:
			return nil, nil, lerr
		}
	}
	return found, misses, nil
}

func isNotInDatabase(err error) bool {
	return errors.Is(err, testdb.ErrNotInDatabase)
}
