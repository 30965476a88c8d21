package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	logger, err := NewLoggerWithFile(path, "info")
	require.NoError(t, err)

	logger.Sugar().Infow("ledger_session_opened", "identity", "appUser")
	logger.Debug("dropped below level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ledger_session_opened"`)
	assert.Contains(t, string(data), `"identity":"appUser"`)
	assert.NotContains(t, string(data), "dropped below level")
}
