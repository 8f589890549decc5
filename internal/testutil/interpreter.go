package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteInterpreter writes an executable shell script standing in for the
// interpreter and returns its path. The script receives the source path as
// $1 and the quiet flag as $2.
func WriteInterpreter(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "interpreter.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write interpreter: %v", err)
	}
	return path
}

// CatInterpreter prints the source file to stdout and exits 0.
const CatInterpreter = `cat "$1"`

// EchoArgsInterpreter prints each argument on its own line.
const EchoArgsInterpreter = `for a in "$@"; do echo "$a"; done`
