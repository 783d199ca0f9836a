package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "json", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Program started", zap.String("program", "wave"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Program started", entry["msg"])
	assert.Equal(t, "wave", entry["program"])
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", "console", &buf)
	require.NoError(t, err)

	logger.Debug("tick")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "tick")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armseq.log")
	logger, closeFn, err := NewFile("info", "console", path)
	require.NoError(t, err)

	logger.Info("Segment approach")
	require.NoError(t, logger.Sync())
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Segment approach")
}

func TestNewFile_NoPathOnlyErrors(t *testing.T) {
	logger, closeFn, err := NewFile("debug", "console", "")
	require.NoError(t, err)
	defer closeFn()

	assert.False(t, logger.Core().Enabled(zap.WarnLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
}
