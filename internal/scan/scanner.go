// Package scan discovers subject folders and their exported scans under a
// study's data directory.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
)

// NiftiExtensions are the exported scan file extensions
var NiftiExtensions = []string{
	".nii",
	".nii.gz",
}

// Subject is one timepoint folder under <datadir>/nii
type Subject struct {
	ID    string
	Site  string // "" when the folder name cannot be parsed
	Dir   string
	Files []string // scan paths, in listing order
}

// Scanner discovers subject folders
type Scanner struct {
	subject string
	logger  *report.EventLogger
}

// Config holds scanner configuration
type Config struct {
	Subject string // restrict discovery to this folder name
	Logger  *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	return &Scanner{
		subject: cfg.Subject,
		logger:  cfg.Logger,
	}
}

// Result represents a discovery result
type Result struct {
	Subjects []*Subject
	Phantoms int
	Errors   []error
}

// NiiDir returns the folder holding the subject folders of a data directory
func NiiDir(datadir string) string {
	return filepath.Join(datadir, "nii")
}

// Discover lists the subject folders of datadir in name order. Phantom
// folders are skipped; a subject filter that matches nothing is an error.
func (s *Scanner) Discover(ctx context.Context, datadir string) (*Result, error) {
	root := NiiDir(datadir)
	util.DebugLog("Discovering subjects in: %s", root)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "scan: read %s", root)
	}

	result := &Result{
		Errors: make([]error, 0),
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if s.subject != "" && name != s.subject {
			continue
		}
		if strings.Contains(name, "PHA") {
			util.DebugLog("Skipping phantom: %s", name)
			result.Phantoms++
			continue
		}

		dir := filepath.Join(root, name)
		files, err := ListScans(dir)
		if err != nil {
			util.WarnLog("Failed to list %s: %v", dir, err)
			result.Errors = append(result.Errors, err)
			if s.logger != nil {
				s.logger.LogError(report.EventError, name, err)
			}
			continue
		}

		site := scanid.SiteOf(name)
		if site == "" {
			util.WarnLog("Cannot parse site from subject folder %s", name)
		}

		result.Subjects = append(result.Subjects, &Subject{
			ID:    name,
			Site:  site,
			Dir:   dir,
			Files: files,
		})
	}

	if s.subject != "" && len(result.Subjects) == 0 && result.Phantoms == 0 {
		return result, eris.Wrapf(util.ErrNotFound, "scan: subject %s not in %s", s.subject, root)
	}

	util.InfoLog("Discovered %d subjects (%d phantoms skipped)", len(result.Subjects), result.Phantoms)
	return result, nil
}

// ListScans returns the NIfTI files directly inside dir, in name order
func ListScans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isNiftiFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// isNiftiFile checks if a file has an exported scan extension
func isNiftiFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range NiftiExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
