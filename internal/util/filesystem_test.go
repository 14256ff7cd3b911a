package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSameDevice(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	if err := os.WriteFile(a, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	same, err := SameDevice(a, sub)
	if err != nil {
		t.Fatalf("SameDevice failed: %v", err)
	}
	if !same {
		t.Error("a file and its sibling directory should share a device")
	}
}

func TestSameDevice_Missing(t *testing.T) {
	dir := t.TempDir()
	if _, err := SameDevice(filepath.Join(dir, "nope"), dir); err == nil {
		t.Error("expected error for missing path")
	}
}
