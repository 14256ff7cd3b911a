// Package qcreport assembles the per-subject HTML QC report: the
// reconciliation table, check-log excerpts and the images written by the
// diagnostic routines.
package qcreport

import (
	"os"
	"path/filepath"
)

// State is the lifecycle state of a subject's report
type State int

const (
	// Absent: no report and no partial report
	Absent State = iota
	// InProgress: a previous run stopped while writing the report
	InProgress
	// Complete: the report exists and is left alone
	Complete
	// Rewriting: the report is rebuilt from existing images
	Rewriting
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Complete:
		return "complete"
	case Rewriting:
		return "rewriting"
	default:
		return "absent"
	}
}

// ReportPath returns <qcdir>/<subject>/qc_<subject>.html
func ReportPath(qcdir, subject string) string {
	return filepath.Join(qcdir, subject, "qc_"+subject+".html")
}

// tempPath is where a report is written before it is renamed into place
func tempPath(path string) string {
	return path + ".tmp"
}

// StateOf decides the state of the report at path. Rewrite mode always
// yields Rewriting, whether or not a report exists.
func StateOf(path string, rewrite bool) State {
	if rewrite {
		return Rewriting
	}
	if exists(path) {
		return Complete
	}
	if exists(tempPath(path)) {
		return InProgress
	}
	return Absent
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
