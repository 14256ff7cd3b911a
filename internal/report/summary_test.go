package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/neuroqc/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func setupTestData(t *testing.T, db *store.Store) {
	t.Helper()
	rows := []struct {
		subj, site string
		spikes     float64
	}{
		{"SPN01_CMH_0001_01", "CMH", 2},
		{"SPN01_CMH_0002_01", "CMH", 4},
		{"SPN01_ZHH_0001_01", "ZHH", 1250},
	}
	for _, r := range rows {
		for _, table := range store.Tables {
			if err := db.Upsert(table, r.subj, store.ColumnSite, r.site); err != nil {
				t.Fatalf("Upsert site failed: %v", err)
			}
		}
		if err := db.Upsert(store.TableFMRI, r.subj, "spikecount", r.spikes); err != nil {
			t.Fatalf("Upsert spikecount failed: %v", err)
		}
	}
}

func writeTestEvents(t *testing.T, dir string) string {
	t.Helper()
	logger, err := NewEventLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	logger.LogSubject("SPN01_CMH_0001_01", "absent", "generate")
	logger.LogSubject("SPN01_CMH_0002_01", "complete", "skip")
	logger.LogSubject("SPN01_ZHH_0001_01", "rewriting", "relink")
	logger.LogAnomaly("SPN01_CMH_0001_01", "RST", "", "missing(1)")
	logger.LogDiagnostic("SPN01_CMH_0001_01", "a_T1_02_t1.nii.gz", "T1", "structural", 1, time.Second, nil)
	logger.LogDiagnostic("SPN01_CMH_0001_01", "a_RST_05_r.nii.gz", "RST", "functional-rest", 2, time.Second, errors.New("3dvolreg exited with status 1"))
	logger.LogDiagnostic("SPN01_CMH_0001_01", "a_RST_06_r.nii.gz", "RST", "functional-rest", 2, time.Second, errors.New("3dvolreg exited with status 1"))
	logger.LogConfigIssue("CMH", "ASL")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return logger.Path()
}

func TestGenerateSummaryReport(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := store.Open(filepath.Join(tmpDir, store.FileName))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	setupTestData(t, db)
	eventLog := writeTestEvents(t, tmpDir)

	report, err := GenerateSummaryReport(db, eventLog)
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	if len(report.Tables) != len(store.Tables) {
		t.Fatalf("Expected %d tables, got %d", len(store.Tables), len(report.Tables))
	}
	fmri := report.Tables[0]
	if fmri.Table != store.TableFMRI || fmri.Subjects != 3 {
		t.Errorf("unexpected fmri summary: %+v", fmri)
	}
	if len(fmri.Sites) != 2 || fmri.Sites[0].Site != "CMH" || fmri.Sites[0].Means["spikecount"] != 3 {
		t.Errorf("unexpected fmri site summary: %+v", fmri.Sites)
	}
	for _, c := range fmri.Columns {
		if c == store.ColumnSite {
			t.Error("site must not be listed as a metric column")
		}
	}

	run := report.Run
	if run == nil {
		t.Fatal("Expected a run summary")
	}
	if run.SubjectsGenerated != 1 || run.SubjectsSkipped != 1 || run.SubjectsRelinked != 1 {
		t.Errorf("unexpected subject tallies: %+v", run)
	}
	if run.DiagnosticsOK != 1 || run.DiagnosticsFailed != 2 || run.ImagesWritten != 5 {
		t.Errorf("unexpected diagnostic tallies: %+v", run)
	}
	if run.Anomalies != 1 || run.ConfigIssues != 1 {
		t.Errorf("unexpected anomaly tallies: %+v", run)
	}

	if len(report.TopErrors) != 1 || report.TopErrors[0].Count != 2 {
		t.Errorf("unexpected top errors: %+v", report.TopErrors)
	}
}

func TestGenerateSummaryReport_NoEventLog(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), store.FileName))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	report, err := GenerateSummaryReport(db, "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}
	if report.Run != nil {
		t.Error("Expected no run summary without an event log")
	}
	if report.Tables[0].Subjects != 0 {
		t.Error("Expected an empty store")
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "reports", "summary.md")

	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: "/qc/subject-qc.db",
		DatabaseSize: 2 * 1000 * 1000,
		EventLogPath: "/qc/logs/events-20240101-120000-abcd1234.jsonl",
		Tables: []TableSummary{
			{
				Table:    "fmri",
				Subjects: 1204,
				Columns:  []string{"spikecount", "fdtot"},
				Sites: []SiteSummary{
					{Site: "CMH", Subjects: 1200, Means: map[string]float64{"spikecount": 1234.5, "fdtot": 2.25}},
					{Site: "ZHH", Subjects: 4, Means: map[string]float64{"spikecount": 3}},
				},
			},
			{Table: "t1", Subjects: 0},
		},
		Run: &RunSummary{
			RunID:             "0b7c2c1e-0000-4000-8000-000000000000",
			Started:           time.Now().Add(-time.Hour),
			Duration:          90 * time.Second,
			SubjectsGenerated: 3,
			DiagnosticsOK:     10,
			DiagnosticsFailed: 1,
		},
		TopErrors: []ErrorSummary{{Error: "slicer | exited", Count: 2}},
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	expected := []string{
		"# QC Metrics - Summary Report",
		"**Database:** `/qc/subject-qc.db` (2.0 MB)",
		"| fmri | 1,204 | 2 |",
		"## fmri by site",
		"| CMH | 1,200 | 1,234.500 | 2.250 |",
		"| ZHH | 4 | 3.000 | - |",
		"| Run ID | `0b7c2c1e-0000-4000-8000-000000000000` |",
		"| Duration | 1m30s |",
		"| Diagnostics Failed | 1 |",
		"| 2 | slicer \\| exited |",
	}
	for _, s := range expected {
		if !strings.Contains(md, s) {
			t.Errorf("Report missing %q", s)
		}
	}
	if strings.Contains(md, "## t1 by site") {
		t.Error("Tables without metrics should have no site section")
	}
}

func TestLatestEventLog(t *testing.T) {
	dir := t.TempDir()
	if got, err := LatestEventLog(dir); err != nil || got != "" {
		t.Errorf("LatestEventLog on empty dir = %q, %v", got, err)
	}

	for _, name := range []string{"events-20240101-120000-aaaa.jsonl", "events-20240301-080000-bbbb.jsonl", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := LatestEventLog(dir)
	if err != nil {
		t.Fatalf("LatestEventLog failed: %v", err)
	}
	if filepath.Base(got) != "events-20240301-080000-bbbb.jsonl" {
		t.Errorf("LatestEventLog = %s", got)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path   string
		maxLen int
		want   string
	}{
		{"/short/path", 80, "/short/path"},
		{"/very/long/path/to/some/deeply/nested/subject/folder/qc.html", 20, "/very/lo.../qc.html"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.maxLen); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, expected %q", tt.path, tt.maxLen, got, tt.want)
		}
	}
}

func TestRunMetrics(t *testing.T) {
	m := NewRunMetrics()
	m.ObserveSubject("generate")
	m.ObserveSubject("generate")
	m.ObserveSubject("skip")
	m.ObserveDiagnostic("functional-rest", nil)
	m.ObserveDiagnostic("functional-rest", errors.New("boom"))
	m.ObserveAnomaly("missing")
	m.Finish(time.Now().Add(-time.Minute))

	if got := testutil.ToFloat64(m.subjects.WithLabelValues("generate")); got != 2 {
		t.Errorf("generate count = %v, expected 2", got)
	}
	if got := testutil.ToFloat64(m.diagnostics.WithLabelValues("functional-rest", "error")); got != 1 {
		t.Errorf("functional error count = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.duration); got < 59 {
		t.Errorf("duration = %v, expected about 60", got)
	}

	path := filepath.Join(t.TempDir(), "nqc.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	if !strings.Contains(string(content), `nqc_subjects_total{action="generate"} 2`) {
		t.Errorf("textfile missing subject counter:\n%s", content)
	}

	var nilMetrics *RunMetrics
	nilMetrics.ObserveSubject("skip")
	if err := nilMetrics.WriteTextfile(path); err != nil {
		t.Errorf("nil RunMetrics.WriteTextfile should not error, got: %v", err)
	}
}
