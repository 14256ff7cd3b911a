package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/neuroqc/internal/store"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SummaryReport represents a complete summary report
type SummaryReport struct {
	GeneratedAt time.Time

	Tables []TableSummary

	// Last run, from its event log
	Run       *RunSummary
	TopErrors []ErrorSummary

	// Metadata
	DatabasePath string
	DatabaseSize int64
	EventLogPath string
}

// TableSummary describes one metrics table
type TableSummary struct {
	Table    string
	Subjects int
	Columns  []string
	Sites    []SiteSummary
}

// SiteSummary holds the per-site subject count and metric means
type SiteSummary struct {
	Site     string
	Subjects int
	Means    map[string]float64
}

// RunSummary tallies the events of one run
type RunSummary struct {
	RunID             string
	Started           time.Time
	Duration          time.Duration
	SubjectsGenerated int
	SubjectsRelinked  int
	SubjectsSkipped   int
	DiagnosticsOK     int
	DiagnosticsFailed int
	ImagesWritten     int
	Anomalies         int
	ConfigIssues      int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport creates a summary report from the metrics store and,
// when eventLogPath is set, the event log of a run
func GenerateSummaryReport(db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		EventLogPath: eventLogPath,
		TopErrors:    make([]ErrorSummary, 0),
	}

	for _, table := range store.Tables {
		stats, err := db.Stats(table)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s stats: %w", table, err)
		}
		cols, err := db.Columns(table)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s columns: %w", table, err)
		}

		ts := TableSummary{Table: table, Subjects: stats.Subjects, Columns: metricColumns(cols)}
		for _, site := range stats.Sites() {
			ts.Sites = append(ts.Sites, SiteSummary{
				Site:     site,
				Subjects: stats.BySite[site],
				Means:    stats.SiteMeans[site],
			})
		}
		report.Tables = append(report.Tables, ts)
	}

	if eventLogPath != "" {
		events, err := ReadEvents(eventLogPath)
		if err != nil {
			return nil, err
		}
		report.Run = summarizeRun(events)
		report.TopErrors = gatherTopErrors(events, 10)
	}

	return report, nil
}

func metricColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != store.ColumnSite {
			out = append(out, c)
		}
	}
	return out
}

// ReadEvents loads a JSONL event log
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}

// LatestEventLog returns the most recent event log in dir, or "" if none
func LatestEventLog(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	// names embed a sortable timestamp
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func summarizeRun(events []Event) *RunSummary {
	run := &RunSummary{}
	var first, last time.Time
	for _, e := range events {
		if run.RunID == "" {
			run.RunID = e.RunID
		}
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}

		switch e.Event {
		case EventSubject:
			switch e.Action {
			case "generate":
				run.SubjectsGenerated++
			case "relink":
				run.SubjectsRelinked++
			case "skip":
				run.SubjectsSkipped++
			}
		case EventDiagnostic:
			if e.Error != "" {
				run.DiagnosticsFailed++
			} else {
				run.DiagnosticsOK++
			}
			run.ImagesWritten += e.Images
		case EventAnomaly:
			run.Anomalies++
		case EventConfig:
			run.ConfigIssues++
		}
	}
	run.Started = first
	if !first.IsZero() {
		run.Duration = last.Sub(first)
	}
	return run
}

// gatherTopErrors retrieves the most common errors
func gatherTopErrors(events []Event, limit int) []ErrorSummary {
	errorCounts := make(map[string]int)
	for _, e := range events {
		if e.Error != "" {
			errorCounts[e.Error]++
		}
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for err, count := range errorCounts {
		errors = append(errors, ErrorSummary{
			Error: err,
			Count: count,
		})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// RenderMarkdown formats the summary report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	p := message.NewPrinter(language.English)
	var md strings.Builder

	md.WriteString("# QC Metrics - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`", report.DatabasePath))
		if report.DatabaseSize > 0 {
			md.WriteString(fmt.Sprintf(" (%s)", humanize.Bytes(uint64(report.DatabaseSize))))
		}
		md.WriteString("\n\n")
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", truncatePath(report.EventLogPath, 80)))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## Overview\n\n")
	md.WriteString("| Table | Subjects | Metrics |\n")
	md.WriteString("|-------|----------|---------|\n")
	for _, t := range report.Tables {
		md.WriteString(p.Sprintf("| %s | %d | %d |\n", t.Table, t.Subjects, len(t.Columns)))
	}
	md.WriteString("\n")

	// Per-site means
	for _, t := range report.Tables {
		if len(t.Sites) == 0 || len(t.Columns) == 0 {
			continue
		}
		md.WriteString(fmt.Sprintf("## %s by site\n\n", t.Table))
		md.WriteString("| Site | Subjects |")
		for _, c := range t.Columns {
			md.WriteString(" " + c + " |")
		}
		md.WriteString("\n|------|----------|")
		for range t.Columns {
			md.WriteString("------|")
		}
		md.WriteString("\n")
		for _, s := range t.Sites {
			md.WriteString(p.Sprintf("| %s | %d |", s.Site, s.Subjects))
			for _, c := range t.Columns {
				if v, ok := s.Means[c]; ok {
					md.WriteString(p.Sprintf(" %.3f |", v))
				} else {
					md.WriteString(" - |")
				}
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}

	// Last run
	if r := report.Run; r != nil {
		md.WriteString("## Last Run\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		if r.RunID != "" {
			md.WriteString(fmt.Sprintf("| Run ID | `%s` |\n", r.RunID))
		}
		if !r.Started.IsZero() {
			md.WriteString(fmt.Sprintf("| Started | %s (%s) |\n", r.Started.Format("2006-01-02 15:04:05"), humanize.Time(r.Started)))
			md.WriteString(fmt.Sprintf("| Duration | %s |\n", r.Duration.Round(time.Second)))
		}
		md.WriteString(p.Sprintf("| Reports Generated | %d |\n", r.SubjectsGenerated))
		md.WriteString(p.Sprintf("| Reports Relinked | %d |\n", r.SubjectsRelinked))
		md.WriteString(p.Sprintf("| Subjects Skipped | %d |\n", r.SubjectsSkipped))
		md.WriteString(p.Sprintf("| Diagnostics OK | %d |\n", r.DiagnosticsOK))
		if r.DiagnosticsFailed > 0 {
			md.WriteString(p.Sprintf("| Diagnostics Failed | %d |\n", r.DiagnosticsFailed))
		}
		md.WriteString(p.Sprintf("| Images Written | %d |\n", r.ImagesWritten))
		if r.Anomalies > 0 {
			md.WriteString(p.Sprintf("| Reconciliation Anomalies | %d |\n", r.Anomalies))
		}
		if r.ConfigIssues > 0 {
			md.WriteString(p.Sprintf("| Unhandled Manifest Tags | %d |\n", r.ConfigIssues))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(p.Sprintf("| %d | %s |\n", err.Count, strings.ReplaceAll(err.Error, "|", "\\|")))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by nqc*\n")

	return md.String()
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
