package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/franz/neuroqc/internal/diag"
	"github.com/franz/neuroqc/internal/dispatch"
	"github.com/franz/neuroqc/internal/external"
	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/qcreport"
	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/scan"
	"github.com/franz/neuroqc/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build QC reports for every subject of the study",
	Long: `Build the QC report of every subject under <datadir>/nii.

For each subject:
1. Complete reports are skipped (use --rewrite to rebuild them)
2. Scans are matched against the site's expected acquisitions
3. Each matched scan gets the diagnostic routine of its modality
4. Metrics are recorded in the store and the HTML report is written

Reports are written to a temporary file and renamed when complete, so an
interrupted run is picked up again on the next invocation.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	flags := runCmd.Flags()
	flags.String("subject", "", "process only this subject folder")
	flags.Bool("rewrite", false, "rebuild reports from existing images without running diagnostics")
	flags.Bool("dry-run", false, "log external tool invocations without running them")
	flags.String("events-dir", "", "directory of the JSONL event log (default: <qcdir>/logs)")
	flags.String("metrics-textfile", "", "write run counters to this Prometheus textfile")
	flags.String("qa-scripts-dir", "", "directory holding the QA scripts")
	flags.StringSlice("technotes-sites", nil, "sites whose reports link technologist notes")
	flags.Int("min-trs", dispatch.DefaultMinTRs, "shortest functional run that gets diagnostics")
	flags.Uint64("seed", 0, "seed of the voxel sample used for the correlation statistics")
	flags.Float64("correlation-fraction", diag.DefaultCorrelationFraction, "share of in-mask voxels sampled for correlation statistics")

	viper.BindPFlag("subject", flags.Lookup("subject"))
	viper.BindPFlag("rewrite", flags.Lookup("rewrite"))
	viper.BindPFlag("dry-run", flags.Lookup("dry-run"))
	viper.BindPFlag("events-dir", flags.Lookup("events-dir"))
	viper.BindPFlag("metrics-textfile", flags.Lookup("metrics-textfile"))
	viper.BindPFlag("qa-scripts-dir", flags.Lookup("qa-scripts-dir"))
	viper.BindPFlag("technotes-sites", flags.Lookup("technotes-sites"))
	viper.BindPFlag("functional.min-trs", flags.Lookup("min-trs"))
	viper.BindPFlag("correlation.seed", flags.Lookup("seed"))
	viper.BindPFlag("correlation.fraction", flags.Lookup("correlation-fraction"))
}

// runTally counts subject outcomes for the closing summary
type runTally struct {
	generated, relinked, skipped, failed int
	diagnostics, diagFailed, images      int
	missing, repeated, extra             int
}

func (t *runTally) add(out *qcreport.Outcome) {
	switch out.Action {
	case qcreport.ActionGenerate:
		t.generated++
	case qcreport.ActionRelink:
		t.relinked++
	case qcreport.ActionSkip:
		t.skipped++
		return
	}
	t.diagnostics += out.Diagnostics
	t.diagFailed += out.Failed
	t.images += out.Images
	t.missing += out.Rows.Missing
	t.repeated += out.Rows.Repeated
	t.extra += out.Rows.Extra
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := resolvePaths(true)
	if err != nil {
		return err
	}
	rewrite := GetConfigBool("rewrite")
	dryRun := GetConfigBool("dry-run")

	// Configuration errors are fatal before any subject is touched
	m, err := manifest.Load(paths.Settings)
	if err != nil {
		return fmt.Errorf("failed to load project settings: %w", err)
	}
	if _, err := os.Stat(scan.NiiDir(paths.DataDir)); err != nil {
		return fmt.Errorf("data directory has no nii folder: %w", err)
	}

	logger, err := report.NewEventLogger(GetConfigString("events-dir", filepath.Join(paths.QCDir, "logs")), eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	logger.LogRun("start", map[string]string{
		"datadir": paths.DataDir,
		"qcdir":   paths.QCDir,
		"rewrite": strconv.FormatBool(rewrite),
		"dry_run": strconv.FormatBool(dryRun),
	})

	for _, issue := range dispatch.Validate(m) {
		util.WarnLog("Site %s: no diagnostic routine for tag %s", issue.Site, issue.Tag)
		logger.LogConfigIssue(issue.Site, issue.Tag)
	}

	db, err := openStore(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer db.Close()

	metrics := report.NewRunMetrics()
	assembler := qcreport.New(qcreport.Config{
		DataDir:             paths.DataDir,
		QCDir:               paths.QCDir,
		Manifest:            m,
		Metrics:             db,
		Runner:              external.NewExecRunner(dryRun, GetConfigString("qa-scripts-dir", "")),
		TechNotesSites:      GetConfigStringSlice("technotes-sites"),
		MinTRs:              GetConfigInt("functional.min-trs", dispatch.DefaultMinTRs),
		Seed:                viper.GetUint64("correlation.seed"),
		CorrelationFraction: GetConfigFloat("correlation.fraction", diag.DefaultCorrelationFraction),
		DryRun:              dryRun,
		Events:              logger,
		RunMetrics:          metrics,
	})

	util.InfoLog("=== Subject Discovery ===")
	util.InfoLog("Data: %s", paths.DataDir)
	scanner := scan.New(&scan.Config{
		Subject: GetConfigString("subject", ""),
		Logger:  logger,
	})
	discovered, err := scanner.Discover(ctx, paths.DataDir)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	util.InfoLog("")
	util.InfoLog("=== QC Reports ===")
	if dryRun {
		util.WarnLog("DRY RUN: external tools will not be executed")
	}

	// Check if stdout is a terminal (disable progress bar if piped/redirected)
	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(discovered.Subjects),
			progressbar.OptionSetDescription("Subjects"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("subjects"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	started := time.Now()
	tally := &runTally{}
	var runErr error

	for i, subj := range discovered.Subjects {
		if bar != nil {
			bar.Describe(fmt.Sprintf("Subjects | %s", subj.ID))
		} else {
			util.DebugLog("Progress: subject %d/%d (%s)", i+1, len(discovered.Subjects), subj.ID)
		}

		out, err := assembler.Process(ctx, subj, rewrite)
		if bar != nil {
			bar.Add(1)
		}
		if err != nil {
			if ctx.Err() != nil {
				runErr = fmt.Errorf("interrupted while processing %s: %w", subj.ID, ctx.Err())
				break
			}
			logger.LogError(report.EventError, subj.ID, err)
			if errors.Is(err, dispatch.ErrStore) {
				runErr = fmt.Errorf("metrics store failure, aborting: %w", err)
				break
			}
			util.ErrorLog("Subject %s failed: %v", subj.ID, err)
			tally.failed++
			continue
		}
		tally.add(out)
	}

	if bar != nil {
		bar.Finish()
	}

	duration := time.Since(started)
	metrics.Finish(started)
	if path := GetConfigString("metrics-textfile", ""); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			util.WarnLog("Failed to write metrics textfile: %v", err)
		}
	}

	result := "ok"
	if runErr != nil {
		result = "aborted"
	}
	logger.LogRun("finish", map[string]string{
		"result":    result,
		"generated": strconv.Itoa(tally.generated),
		"relinked":  strconv.Itoa(tally.relinked),
		"skipped":   strconv.Itoa(tally.skipped),
		"failed":    strconv.Itoa(tally.failed),
	})

	// Summary
	util.InfoLog("")
	if runErr == nil {
		util.SuccessLog("QC run complete in %v", duration.Round(time.Millisecond))
	} else {
		util.ErrorLog("QC run stopped after %v", duration.Round(time.Millisecond))
	}
	util.InfoLog("  Subjects: %d (%d phantoms skipped)", len(discovered.Subjects), discovered.Phantoms)
	util.InfoLog("  Generated: %d", tally.generated)
	if tally.relinked > 0 {
		util.InfoLog("  Relinked: %d", tally.relinked)
	}
	util.InfoLog("  Already complete: %d", tally.skipped)
	util.InfoLog("  Diagnostics: %d (%d images)", tally.diagnostics, tally.images)
	if tally.diagFailed > 0 {
		util.WarnLog("  Diagnostics with errors: %d", tally.diagFailed)
	}
	if tally.missing+tally.repeated+tally.extra > 0 {
		util.WarnLog("  Anomalies: %d missing, %d repeated, %d extra", tally.missing, tally.repeated, tally.extra)
	}
	if tally.failed > 0 {
		util.WarnLog("  Failed subjects: %d", tally.failed)
	}

	return runErr
}
