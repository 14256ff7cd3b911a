package util

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the zap encoder and minimum level
type LogConfig struct {
	Format string `mapstructure:"format"` // "console", "json" or "" (auto: console on a TTY)
	Level  string `mapstructure:"level"`  // debug, info, warn, error
}

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar       = newDefaultLogger().Sugar()
)

func newDefaultLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atomicLevel
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	zap.ReplaceGlobals(logger)
	return logger
}

// InitLogger builds the global zap logger used by the *Log helpers and by
// zap.L(). It is safe to call more than once.
func InitLogger(cfg LogConfig) error {
	format := cfg.Format
	if format == "" {
		if IsTerminal(os.Stderr) {
			format = "console"
		} else {
			format = "json"
		}
	}

	var zapCfg zap.Config
	switch format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	case "json":
		zapCfg = zap.NewProductionConfig()
	default:
		return eris.Wrapf(ErrInvalidConfig, "util: unknown log format %q", format)
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return eris.Wrap(err, "util: parse log level")
		}
		atomicLevel.SetLevel(level)
	}
	zapCfg.Level = atomicLevel
	zapCfg.DisableStacktrace = true

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "util: build logger")
	}
	zap.ReplaceGlobals(logger)
	sugar = logger.Sugar()
	return nil
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		atomicLevel.SetLevel(zapcore.DebugLevel)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		atomicLevel.SetLevel(zapcore.ErrorLevel)
	}
}

// IsQuiet reports whether only errors are being logged
func IsQuiet() bool {
	return atomicLevel.Level() >= zapcore.ErrorLevel
}

// SyncLogger flushes buffered log entries
func SyncLogger() {
	_ = zap.L().Sync()
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	sugar.Debugf(format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	sugar.Warnf(format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	sugar.With("ok", true).Infof(format, args...)
}
