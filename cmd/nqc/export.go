package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the metrics store to an XLSX workbook",
	Long: `Write every metrics table (fmri, dti, t1) to an XLSX workbook, one sheet
per table, for review in a spreadsheet.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("out", "o", "", "output workbook (default: <qcdir>/subject-qc.xlsx)")
}

func runExport(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths(false)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(paths.QCDir, "subject-qc.xlsx")
	}

	if _, err := os.Stat(paths.DBPath); err != nil {
		return fmt.Errorf("no metrics store at %s: %w", paths.DBPath, err)
	}
	db, err := openStore(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer db.Close()

	if err := report.ExportWorkbook(db, out); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	util.SuccessLog("Metrics exported to %s", out)
	return nil
}
