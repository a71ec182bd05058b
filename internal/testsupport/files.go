package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// StubBinary writes an executable shell script named name into dir and
// returns its path. body runs after the shebang.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

// StubPath replaces PATH with a temp dir holding no-op stubs for names, so
// dependency checks see exactly those binaries.
func StubPath(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		StubBinary(t, dir, name, "exit 0\n")
	}
	t.Setenv("PATH", dir)
	return dir
}
