package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")

	logger, err := NewLogger(LoggerConfig{Level: "warn", OutputPath: path, Format: "json", Service: "approval"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "approval", entry["service"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "chatty", OutputPath: "stderr", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))
	assert.False(t, logger.Core().Enabled(-1))
}
