// Package reconcile matches the scan files found for a subject against the
// acquisitions its site's manifest expects.
package reconcile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/scanid"
)

// Notes attached to reconciliation rows
const (
	NoteRepeated = "Repeated Scan"
	NoteExtra    = "extra scan"
	TagUnknown   = "unknown"
)

// Row is one line of the reconciliation table.
// File is a basename; empty for missing rows. Bookmark is empty for missing
// and unknown rows.
type Row struct {
	Tag      string
	File     string
	Bookmark string
	Note     string
}

// Matched reports whether the row references a file claimed by the manifest
func (r Row) Matched() bool {
	return r.File != "" && r.Tag != TagUnknown
}

// Missing reports whether the row records an acquisition deficit
func (r Row) Missing() bool {
	return r.File == ""
}

// MissingNote formats the deficit annotation
func MissingNote(n int) string {
	return fmt.Sprintf("missing(%d)", n)
}

// Reconcile builds the reconciliation table for one subject.
// files are basenames or paths in listing order; site is the subject's site
// code. A site absent from the manifest yields no rows.
func Reconcile(m *manifest.Manifest, site string, files []string) []Row {
	s, ok := m.Site(site)
	if !ok {
		return nil
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}

	var rows []Row
	claimed := make(map[string]bool)

	for _, acq := range s.Acquisitions {
		token := scanid.TagToken(acq.Tag)

		var matched []string
		for _, name := range names {
			if strings.Contains(name, token) {
				matched = append(matched, name)
			}
		}
		sort.Strings(matched)

		for i, name := range matched {
			n := i + 1
			note := ""
			if n > acq.Count {
				note = NoteRepeated
			}
			rows = append(rows, Row{
				Tag:      acq.Tag,
				File:     name,
				Bookmark: fmt.Sprintf("%s%d", acq.Tag, n),
				Note:     note,
			})
			claimed[name] = true
		}

		if deficit := acq.Count - len(matched); deficit > 0 {
			rows = append(rows, Row{Tag: acq.Tag, Note: MissingNote(deficit)})
		}
	}

	for _, r := range rows {
		for _, derived := range scanid.DerivedNames(r.File) {
			claimed[derived] = true
		}
	}

	for _, name := range names {
		if claimed[name] {
			continue
		}
		rows = append(rows, Row{Tag: TagUnknown, File: name, Note: NoteExtra})
		// a file listed twice is still only one extra scan
		claimed[name] = true
	}

	return rows
}

// Summary counts the anomalies of a table
type Summary struct {
	Matched  int
	Repeated int
	Missing  int
	Extra    int
}

// Summarize tallies rows by classification
func Summarize(rows []Row) Summary {
	var s Summary
	for _, r := range rows {
		switch {
		case r.Tag == TagUnknown:
			s.Extra++
		case r.Missing():
			s.Missing++
		case r.Note == NoteRepeated:
			s.Repeated++
			s.Matched++
		default:
			s.Matched++
		}
	}
	return s
}
