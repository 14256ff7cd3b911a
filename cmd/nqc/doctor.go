package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/franz/neuroqc/internal/dispatch"
	"github.com/franz/neuroqc/internal/external"
	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/scan"
	"github.com/franz/neuroqc/internal/store"
	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure nqc can operate correctly.

This command checks:
- External tools (AFNI, FSL slicer)
- QA scripts (searched in --qa-scripts-dir, then PATH)
- SQLite version and metrics store integrity
- Project settings (and sites with tags no routine handles)
- Data directory readability, QC directory writability
- Disk space of the QC directory

Use this command to troubleshoot issues before running nqc.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("qa-scripts-dir", "", "directory holding the QA scripts")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

// toolFinder is satisfied by external.ExecRunner
type toolFinder interface {
	Available(name string) bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== NQC Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	scriptsDir, _ := cmd.Flags().GetString("qa-scripts-dir")
	if scriptsDir == "" {
		scriptsDir = viper.GetString("qa-scripts-dir")
	}
	runner := external.NewExecRunner(false, scriptsDir)

	// 1. External tools
	results = append(results, checkTools(runner, "AFNI", external.AFNITools, true))
	results = append(results, checkTools(runner, "FSL", external.FSLTools, true))
	results = append(results, checkTools(runner, "QA scripts", external.QAScripts, false))

	// 2. SQLite
	results = append(results, checkSQLite())

	qcdir := viper.GetString("qcdir")
	datadir := viper.GetString("datadir")

	// 3. Metrics store
	if qcdir != "" {
		dbPath := filepath.Join(GetConfigString("dbdir", qcdir), store.FileName)
		results = append(results, checkDatabase(dbPath))
	}

	// 4. Project settings
	if settings := viper.GetString("project-settings"); settings != "" {
		results = append(results, checkProjectSettings(settings))
	} else {
		results = append(results, checkResult{name: "Project settings", warning: true, message: "not configured (use --project-settings)"})
	}

	// 5. Directories
	if datadir != "" {
		results = append(results, checkDataDirectory(datadir))
	}
	if qcdir != "" {
		results = append(results, checkOutputDirectory(qcdir))
		results = append(results, checkDiskSpace(qcdir, "qcdir"))
	} else {
		results = append(results, checkResult{name: "QC directory", warning: true, message: "not configured (use --qcdir)"})
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running nqc.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for nqc runs.")
	}

	return nil
}

// checkTools verifies a group of external programs can be found
func checkTools(finder toolFinder, label string, names []string, required bool) checkResult {
	var missing []string
	for _, n := range names {
		if !finder.Available(n) {
			missing = append(missing, n)
		}
	}

	if len(missing) == 0 {
		return checkResult{
			name:    label,
			message: strings.Join(names, ", "),
		}
	}

	r := checkResult{
		name:    label,
		message: fmt.Sprintf("not found: %s", strings.Join(missing, ", ")),
	}
	if required {
		r.error = true
	} else {
		r.warning = true
		r.message += " (QA CSVs will not be produced)"
	}
	return r
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite needs no system library; just verify the version
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the metrics store is usable
func checkDatabase(dbPath string) checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Metrics store",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Metrics store",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Metrics store",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Metrics store",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Metrics store",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	subjects := 0
	if st, err := db.Stats(store.TableT1); err == nil {
		subjects = st.Subjects
	}
	profile := util.ProfileForStore(dbPath, nasMode())

	return checkResult{
		name:    "Metrics store",
		message: fmt.Sprintf("%s (%s, %d subjects, %s)", dbPath, humanize.Bytes(uint64(info.Size())), subjects, profile),
	}
}

// checkProjectSettings loads the manifest and reports unhandled tags
func checkProjectSettings(path string) checkResult {
	m, err := manifest.Load(path)
	if err != nil {
		return checkResult{
			name:    "Project settings",
			error:   true,
			message: err.Error(),
		}
	}

	msg := fmt.Sprintf("%s (%d sites)", path, len(m.Sites))
	issues := dispatch.Validate(m)
	if len(issues) == 0 {
		return checkResult{name: "Project settings", message: msg}
	}

	tags := make([]string, len(issues))
	for i, is := range issues {
		tags[i] = is.Site + "/" + is.Tag
	}
	return checkResult{
		name:    "Project settings",
		warning: true,
		message: fmt.Sprintf("%s; no diagnostic routine for %s", msg, strings.Join(tags, ", ")),
	}
}

// checkDataDirectory verifies the subject folders are readable
func checkDataDirectory(path string) checkResult {
	nii := scan.NiiDir(path)
	info, err := os.Stat(nii)
	if err != nil {
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", nii, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", nii),
		}
	}

	entries, err := os.ReadDir(nii)
	if err != nil {
		return checkResult{
			name:    "Data directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", nii, err),
		}
	}

	subjects := 0
	for _, e := range entries {
		if e.IsDir() {
			subjects++
		}
	}

	return checkResult{
		name:    "Data directory",
		message: fmt.Sprintf("%s (%d subject folders)", nii, subjects),
	}
}

// checkOutputDirectory verifies the QC directory is writable
func checkOutputDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "QC directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "QC directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "QC directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "QC directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	// Check write permission by creating a temp file
	testFile := filepath.Join(path, ".nqc_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "QC directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	msg := fmt.Sprintf("%s (writable)", path)
	if mount, err := util.DetectMount(path); err == nil && mount.Network {
		msg = fmt.Sprintf("%s (writable, network mount %s)", path, mount)
	}
	return checkResult{
		name:    "QC directory",
		message: msg,
	}
}

// minFreeBytes is the free space below which doctor warns; a subject's
// images take a few megabytes.
const minFreeBytes = 5 * 1000 * 1000 * 1000

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	warning := false
	warningMsg := ""
	if availBytes < minFreeBytes {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available of %s%s", humanize.Bytes(availBytes), humanize.Bytes(totalBytes), warningMsg),
	}
}
