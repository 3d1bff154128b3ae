package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rkbackend/internal/env"
)

func TestNew_Production(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithOutput(&buf))

	log.Debug("Hidden")
	log.Info("Model loaded", "model", "yolov5")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Model loaded", rec["msg"])
	assert.Equal(t, "yolov5", rec["model"])
}

func TestNew_DevelopmentConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Test, WithOutput(&buf), WithLevel(slog.LevelWarn))

	log.Info("Hidden")
	log.Warn("Device output is smaller than declared", "output", "376")

	out := buf.String()
	assert.NotContains(t, out, "Hidden")
	assert.Contains(t, out, "Device output is smaller than declared")
	assert.Contains(t, out, "output=376")
}

func TestNew_LogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "rkbackend.log")
	log := New(env.Test, WithOutput(&buf), WithLogToFile(true), WithLogFile(path))

	log.With("instance", "yolov5#0").Info("Instance closed")

	assert.Contains(t, buf.String(), "Instance closed")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "yolov5#0", rec["instance"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
