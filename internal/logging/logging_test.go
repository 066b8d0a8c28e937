package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "warn", "json")
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("no master copy found", zap.String("name", "FB_Motor"))
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "no master copy found", entry["msg"])
	assert.Equal(t, "FB_Motor", entry["name"])
}

func TestNewWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "debug", "console")
	require.NoError(t, err)

	log.Debug("created folder", zap.String("tree", "Plant/Motors"))
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "created folder")
	assert.Contains(t, buf.String(), "Plant/Motors")
}

func TestNewWriter_Errors(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
	_, err = NewWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
