package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/store"
	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// envKeyReplacer maps config keys to environment names: log.level -> NQC_LOG_LEVEL
var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (NQC_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigFloat retrieves a float config value with proper precedence
func GetConfigFloat(key string, defaultValue float64) float64 {
	val := viper.GetFloat64(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// GetConfigStringSlice retrieves a string slice config value
func GetConfigStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}

// studyPaths are the resolved locations of a study
type studyPaths struct {
	DataDir  string
	QCDir    string
	DBPath   string
	Settings string
}

// resolvePaths reads the study locations from config. qcdir is always
// required; datadir and the project settings only when requireData is set.
func resolvePaths(requireData bool) (*studyPaths, error) {
	p := &studyPaths{
		DataDir:  GetConfigString("datadir", ""),
		QCDir:    GetConfigString("qcdir", ""),
		Settings: GetConfigString("project-settings", ""),
	}
	if p.QCDir == "" {
		return nil, eris.Wrap(util.ErrInvalidConfig, "qcdir is required (use --qcdir or set in config)")
	}
	if requireData {
		if p.DataDir == "" {
			return nil, eris.Wrap(util.ErrInvalidConfig, "datadir is required (use --datadir or set in config)")
		}
		if p.Settings == "" {
			return nil, eris.Wrap(util.ErrInvalidConfig, "project-settings is required (use --project-settings or set in config)")
		}
	}
	p.DBPath = filepath.Join(GetConfigString("dbdir", p.QCDir), store.FileName)
	return p, nil
}

// nasMode returns the explicit nas-mode setting, or nil to auto-detect
func nasMode() *bool {
	if !viper.IsSet("nas-mode") {
		return nil
	}
	v := viper.GetBool("nas-mode")
	return &v
}

// openStore opens the metrics store, creating its directory, with pragmas
// chosen for the filesystem it lives on.
func openStore(dbPath string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, eris.Wrap(err, "failed to create database directory")
	}
	profile := util.ProfileForStore(dbPath, nasMode())
	util.DebugLog("Metrics store: %s (%s)", dbPath, profile)
	return store.OpenWithOptions(dbPath, &store.OpenOptions{NetworkOptimized: profile.NetworkOptimized})
}

// eventLevel picks the event log level from the verbosity flags
func eventLevel() report.EventLevel {
	switch {
	case GetConfigBool("quiet"):
		return report.LevelWarning // Only warnings and errors
	case GetConfigBool("verbose"):
		return report.LevelDebug // Everything
	default:
		return report.LevelInfo
	}
}
