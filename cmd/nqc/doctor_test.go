package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/neuroqc/internal/store"
)

type fakeFinder map[string]bool

func (f fakeFinder) Available(name string) bool { return f[name] }

func TestCheckTools(t *testing.T) {
	finder := fakeFinder{"3dvolreg": true, "3dTstat": true}

	result := checkTools(finder, "AFNI", []string{"3dvolreg", "3dTstat"}, true)
	if result.error || result.warning {
		t.Errorf("all tools present should pass: %+v", result)
	}

	result = checkTools(finder, "AFNI", []string{"3dvolreg", "3dAutomask"}, true)
	if !result.error {
		t.Error("missing required tool should be an error")
	}
	if !strings.Contains(result.message, "3dAutomask") || strings.Contains(result.message, "3dvolreg") {
		t.Errorf("message should list only missing tools, got %q", result.message)
	}

	result = checkTools(finder, "QA scripts", []string{"qa_bold_v2.sh"}, false)
	if result.error || !result.warning {
		t.Errorf("missing optional tool should be a warning: %+v", result)
	}
}

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath)

	// Should not error - database will be created on first run
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}

	if !strings.Contains(result.message, "will be created") {
		t.Errorf("expected message about database creation, got %q", result.message)
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), store.FileName)

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	for _, table := range store.Tables {
		if err := db.Upsert(table, "SPN01_CMH_0001_01", store.ColumnSite, "CMH"); err != nil {
			t.Fatalf("failed to insert test row: %v", err)
		}
	}
	db.Close()

	result := checkDatabase(dbPath)

	if result.error {
		t.Errorf("database check failed: %s", result.message)
	}

	if !strings.Contains(result.message, "1 subjects") {
		t.Errorf("expected subject count in message, got %q", result.message)
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	result := checkDatabase(t.TempDir())

	if !result.error {
		t.Error("expected error when the store path is a directory")
	}
}

func TestCheckProjectSettings(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yml")
	if err := os.WriteFile(good, []byte("Sites:\n  - CMH:\n      ExportInfo:\n        - T1: {Count: 1}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if result := checkProjectSettings(good); result.error || result.warning {
		t.Errorf("valid settings should pass: %+v", result)
	}

	unhandled := filepath.Join(dir, "unhandled.yml")
	if err := os.WriteFile(unhandled, []byte("Sites:\n  - CMH:\n      ExportInfo:\n        - ASL: {Count: 1}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	result := checkProjectSettings(unhandled)
	if !result.warning || !strings.Contains(result.message, "CMH/ASL") {
		t.Errorf("expected warning naming CMH/ASL, got %+v", result)
	}

	if result := checkProjectSettings(filepath.Join(dir, "missing.yml")); !result.error {
		t.Error("expected error for missing settings file")
	}
}

func TestCheckDataDirectory(t *testing.T) {
	datadir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(datadir, "nii", "SPN01_CMH_0001_01"), 0755); err != nil {
		t.Fatal(err)
	}

	result := checkDataDirectory(datadir)
	if result.error {
		t.Errorf("data directory check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "1 subject folders") {
		t.Errorf("unexpected message %q", result.message)
	}

	if result := checkDataDirectory(t.TempDir()); !result.error {
		t.Error("expected error for a data directory without nii/")
	}
}

func TestCheckOutputDirectory_Valid(t *testing.T) {
	dir := t.TempDir()

	result := checkOutputDirectory(dir)

	if result.error {
		t.Errorf("QC directory check failed: %s", result.message)
	}
}

func TestCheckOutputDirectory_Create(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "newdir")

	result := checkOutputDirectory(newDir)

	if result.error {
		t.Errorf("QC directory check failed: %s", result.message)
	}

	// Verify directory was created
	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}

func TestCheckOutputDirectory_File(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(filePath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := checkOutputDirectory(filePath)

	if !result.error {
		t.Error("expected error when path is a file, not a directory")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := checkDiskSpace(t.TempDir(), "test")

	// Should not error
	if result.error {
		t.Errorf("disk space check failed: %s", result.message)
	}

	if !strings.Contains(result.message, "available") {
		t.Errorf("expected message with disk space info, got %q", result.message)
	}
}

func TestCheckDiskSpace_NonExistent(t *testing.T) {
	result := checkDiskSpace("/nonexistent/path", "test")

	// Should produce a warning (not error)
	if !result.warning {
		t.Error("expected warning for non-existent path")
	}
}
