package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the metrics store and event log",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Subjects and metric columns per modality table
- Per-site means of every numeric metric
- The last run: subjects generated, relinked and skipped
- Diagnostic outcomes and reconciliation anomalies
- Top errors

The report is saved to <qcdir>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: <qcdir>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (default: latest in <qcdir>/logs)")
}

func runReport(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths(false)
	if err != nil {
		return err
	}

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Metrics store: %s", paths.DBPath)

	if _, err := os.Stat(paths.DBPath); err != nil {
		return fmt.Errorf("no metrics store at %s: %w", paths.DBPath, err)
	}
	db, err := openStore(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	if eventLogPath == "" {
		eventLogPath, err = report.LatestEventLog(GetConfigString("events-dir", filepath.Join(paths.QCDir, "logs")))
		if err != nil {
			util.WarnLog("Cannot look up event logs: %v", err)
		}
	}

	util.InfoLog("Analyzing data...")
	summaryReport, err := report.GenerateSummaryReport(db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	summaryReport.DatabasePath = paths.DBPath
	if info, err := os.Stat(paths.DBPath); err == nil {
		summaryReport.DatabaseSize = info.Size()
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(paths.QCDir, "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Summary
	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	for _, t := range summaryReport.Tables {
		util.InfoLog("  %s: %d subjects", t.Table, t.Subjects)
	}
	if run := summaryReport.Run; run != nil {
		util.InfoLog("  Last run %s: %d generated, %d relinked, %d skipped",
			run.RunID, run.SubjectsGenerated, run.SubjectsRelinked, run.SubjectsSkipped)
		if run.DiagnosticsFailed > 0 {
			util.WarnLog("  Diagnostics with errors: %d", run.DiagnosticsFailed)
		}
	}

	return nil
}
