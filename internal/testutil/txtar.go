package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

// ExtractTxtar writes every file of a txtar archive below dir.
func ExtractTxtar(t *testing.T, dir string, archive string) {
	t.Helper()
	a := txtar.Parse([]byte(archive))
	for _, f := range a.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", f.Name, err)
		}
		if err := os.WriteFile(path, f.Data, 0644); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
}

// ExtractTxtarFile parses the archive at path and extracts it below dir.
func ExtractTxtarFile(t *testing.T, dir, path string) {
	t.Helper()
	a, err := txtar.ParseFile(path)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	ExtractTxtar(t, dir, string(txtar.Format(a)))
}
