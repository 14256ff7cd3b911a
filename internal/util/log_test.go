package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { atomicLevel.SetLevel(zapcore.InfoLevel) })

	require.NoError(t, InitLogger(LogConfig{Format: "json", Level: "warn"}))
	assert.Equal(t, zapcore.WarnLevel, atomicLevel.Level())

	require.NoError(t, InitLogger(LogConfig{Format: "console", Level: "debug"}))
	assert.Equal(t, zapcore.DebugLevel, atomicLevel.Level())
}

func TestInitLogger_Invalid(t *testing.T) {
	t.Cleanup(func() { atomicLevel.SetLevel(zapcore.InfoLevel) })

	err := InitLogger(LogConfig{Format: "xml"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = InitLogger(LogConfig{Format: "json", Level: "chatty"})
	assert.Error(t, err)
}

func TestSetQuietAndVerbose(t *testing.T) {
	t.Cleanup(func() { atomicLevel.SetLevel(zapcore.InfoLevel) })

	SetQuiet(true)
	assert.True(t, IsQuiet())

	SetVerbose(true)
	assert.False(t, IsQuiet())
	assert.Equal(t, zapcore.DebugLevel, atomicLevel.Level())
}
