package main

import (
	"fmt"
	"os"

	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "nqc",
		Short: "Neuroimaging QC - per-subject quality control reports",
		Long: `nqc builds a quality-control report for every subject of an MRI study.
It matches the exported scans of each subject against the acquisitions its
site should have, runs a diagnostic routine per modality, records summary
metrics in a SQLite store and writes an HTML report with the images.

Subjects whose report is already complete are skipped, so nqc can run
unattended after every export.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./configs/nqc.yaml)")
	flags.String("datadir", "", "study data directory (holds nii/ and RESOURCES/)")
	flags.String("qcdir", "", "QC output directory")
	flags.String("dbdir", "", "directory of the metrics store (default: qcdir)")
	flags.String("project-settings", "", "project settings YAML with the per-site acquisitions")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "quiet output (errors only)")
	flags.String("log-format", "", "log format: console or json (default: console on a terminal)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("nas-mode", false, "force network-optimized store settings (default: auto-detect)")

	// Bind flags to viper
	viper.BindPFlag("datadir", flags.Lookup("datadir"))
	viper.BindPFlag("qcdir", flags.Lookup("qcdir"))
	viper.BindPFlag("dbdir", flags.Lookup("dbdir"))
	viper.BindPFlag("project-settings", flags.Lookup("project-settings"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("quiet", flags.Lookup("quiet"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("nas-mode", flags.Lookup("nas-mode"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("nqc")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match (NQC_QCDIR, NQC_LOG_LEVEL, ...)
	viper.SetEnvPrefix("NQC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if err := util.InitLogger(util.LogConfig{
		Format: viper.GetString("log.format"),
		Level:  viper.GetString("log.level"),
	}); err != nil {
		return err
	}
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	return nil
}

func main() {
	err := rootCmd.Execute()
	util.SyncLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
