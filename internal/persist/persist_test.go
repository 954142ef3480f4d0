package persist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAppendsTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, "sw1", []byte("hostname sw1"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "sw1.cfg" {
		t.Errorf("path = %q, want suffix sw1.cfg", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hostname sw1\n" {
		t.Errorf("content = %q, want trailing newline added", got)
	}
}

func TestSaveStripsCarriageReturns(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, "sw1", []byte("hostname sw1\r\ninterface Gi0/1\r\n"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hostname sw1\ninterface Gi0/1\n\n" {
		t.Errorf("content = %q, want \\r stripped and a trailing newline appended", got)
	}
}

func TestSaveCreatesConfigsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "configs")
	if _, err := Save(dir, "sw1", []byte("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("configs dir not created: %v", err)
	}
}

func TestSaveInvalidUTF8Replaced(t *testing.T) {
	dir := t.TempDir()
	bad := []byte{'h', 'i', 0xff, 0xfe}
	path, err := Save(dir, "sw1", bad)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Error("expected non-empty replacement content")
	}
}
