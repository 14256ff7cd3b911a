package main

import (
	"fmt"

	"github.com/franz/neuroqc/internal/dispatch"
	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the project settings against the diagnostic routines",
	Long: `Load the project settings and check that every acquisition tag of every
site has a diagnostic routine. Tags without one are listed; their scans
would only appear in the reconciliation table of a report.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := viper.GetString("project-settings")
	if path == "" {
		return eris.Wrap(util.ErrInvalidConfig, "project-settings is required (use --project-settings or set in config)")
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	util.InfoLog("Project settings: %s", path)
	for _, site := range m.Sites {
		util.InfoLog("  %s", site)
	}

	issues := dispatch.Validate(m)
	if len(issues) == 0 {
		util.SuccessLog("Every acquisition tag has a diagnostic routine")
		return nil
	}

	for _, is := range issues {
		util.WarnLog("Site %s: no diagnostic routine for tag %s", is.Site, is.Tag)
	}
	util.InfoLog("Known tags: %v", dispatch.Tags())
	return fmt.Errorf("%d acquisition tags without a diagnostic routine", len(issues))
}
