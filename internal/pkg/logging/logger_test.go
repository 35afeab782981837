package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l)

	l, err = parseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestNewLoggerWithRotatingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "orders.log")
	logger, err := NewLogger(Options{Service: "orders", Env: "test", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()
	assert.FileExists(t, file)
}
