package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/franz/neuroqc/internal/qcreport"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/franz/neuroqc/internal/store"
	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <subject>",
	Short: "Show the recorded metrics and report state of a subject",
	Long: `Display what nqc knows about one subject:
- The state of its QC report (absent, in progress, complete)
- Every metric recorded for it, per modality table

The subject may be given as its folder name; the session suffix is ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths(false)
	if err != nil {
		return err
	}

	folder := args[0]
	key := folder
	if ident, err := scanid.ParseSubject(folder); err == nil {
		key = ident.TimepointID()
	}

	reportPath := qcreport.ReportPath(paths.QCDir, folder)
	util.InfoLog("=== %s ===", folder)
	util.InfoLog("Report: %s (%s)", reportPath, qcreport.StateOf(reportPath, false))
	util.InfoLog("")

	if _, err := os.Stat(paths.DBPath); err != nil {
		util.WarnLog("No metrics store at %s", paths.DBPath)
		return nil
	}
	db, err := openStore(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer db.Close()

	found := false
	for _, table := range store.Tables {
		rec, err := db.Row(table, key)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", table, err)
		}
		found = true

		cols, err := db.Columns(table)
		if err != nil {
			return fmt.Errorf("failed to read %s columns: %w", table, err)
		}
		util.InfoLog("%s:", table)
		for _, line := range formatRecord(rec, cols) {
			util.InfoLog("  %s", line)
		}
	}

	if !found {
		util.WarnLog("No metrics recorded for %s", key)
	}
	return nil
}

// formatRecord renders the columns of a record as aligned name/value lines.
// Columns without a value are shown as "-".
func formatRecord(rec *store.Record, cols []string) []string {
	width := 0
	for _, c := range cols {
		if len(c) > width {
			width = len(c)
		}
	}

	lines := make([]string, 0, len(cols))
	for _, c := range cols {
		value := "-"
		switch v := rec.Values[c].(type) {
		case float64:
			value = fmt.Sprintf("%g", v)
		case string:
			value = v
		}
		lines = append(lines, fmt.Sprintf("%s%s  %s", c, strings.Repeat(" ", width-len(c)), value))
	}
	return lines
}
