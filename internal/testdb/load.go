package testdb

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// SchemaError reports a database document that does not satisfy the
// schema. Pos points into the document when CUE could locate the problem.
type SchemaError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Load reads the database at path. A missing file yields an empty
// database; any other problem is returned as an error, with schema
// violations reported as *SchemaError.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read test database: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes a database document. name is used in error messages.
func Parse(name string, data []byte) (*Database, error) {
	if err := validateSchema(name, data); err != nil {
		return nil, err
	}

	var suites []*Suite
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&suites); err != nil {
		return nil, &SchemaError{File: name, Message: err.Error()}
	}

	db := &Database{Suites: suites}
	if err := db.normalize(name); err != nil {
		return nil, err
	}
	return db, nil
}

// validateSchema unifies the document with the embedded #Database
// definition and reports the first violation.
func validateSchema(name string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile database schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Database"))

	expr, err := cuejson.Extract(name, data)
	if err != nil {
		return schemaError(name, err)
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return schemaError(name, err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return schemaError(name, err)
	}
	return nil
}

// schemaError keeps the first CUE error and its position.
func schemaError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{File: name, Message: err.Error()}
	}

	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if path := first.Path(); len(path) > 0 {
		msg = strings.Join(path, ".") + ": " + msg
	}
	se := &SchemaError{File: name, Message: msg}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		for _, pos := range positions {
			if pos.Filename() == name {
				se.Pos = pos
				break
			}
		}
	}
	return se
}

// normalize fills defaults and rejects duplicate names, which the schema
// cannot express.
func (db *Database) normalize(name string) error {
	if db.Suites == nil {
		db.Suites = []*Suite{}
	}

	suites := make(map[string]bool, len(db.Suites))
	for i, s := range db.Suites {
		if suites[s.Name] {
			return &SchemaError{File: name, Message: fmt.Sprintf("suites[%d]: duplicate suite %q", i, s.Name)}
		}
		suites[s.Name] = true

		if s.Cases == nil {
			s.Cases = []*Case{}
		}
		cases := make(map[string]bool, len(s.Cases))
		for j, c := range s.Cases {
			if cases[c.Name] {
				return &SchemaError{File: name, Message: fmt.Sprintf("suites[%d].cases[%d]: duplicate case %q in suite %q", i, j, c.Name, s.Name)}
			}
			cases[c.Name] = true

			if c.Stdin == nil {
				c.Stdin = []string{}
			}
			c.Result.Normalize()
		}
	}
	return nil
}
