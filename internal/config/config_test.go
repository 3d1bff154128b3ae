package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
version: "1"
storage:
  models_dir: /var/lib/rkbackend/models
backend:
  driver: sim
  max_pool_bytes: 67108864
models:
  yolov5:
    version: 1
    instances: 2
    config:
      max_batch_size: 0
      input:
        - name: images
          data_type: TYPE_UINT8
          dims: [384, 640, 3]
      output:
        - name: output
          data_type: TYPE_UINT8
          dims: [81, 48, 80]
  resnet:
    driver: rknn
    config_file: config.json
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validConfig), "")
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, int64(67108864), cfg.Backend.MaxPoolBytes)
	require.Contains(t, cfg.Models, "yolov5")

	yolo := cfg.Models["yolov5"]
	assert.Equal(t, 2, yolo.InstanceCount())
	assert.Equal(t, 1, yolo.ModelVersion())
	assert.Equal(t, "sim", cfg.DriverName(yolo))
	assert.Contains(t, yolo.Config, "input")

	resnet := cfg.Models["resnet"]
	assert.Equal(t, "rknn", cfg.DriverName(resnet))
	assert.Equal(t, 1, resnet.InstanceCount())
	assert.Equal(t, "config.json", resnet.ConfigFile)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing models", `version: "1"`},
		{"unknown field", "version: \"1\"\nmodels: {}\nextra: true\n"},
		{"model without config", "version: \"1\"\nmodels:\n  m:\n    version: 1\n"},
		{"bad port", "version: \"1\"\nmodels: {}\nserver:\n  http_port: 70000\n"},
		{"empty input", "version: \"1\"\nmodels:\n  m:\n    config:\n      input: []\n      output: [{name: y, data_type: TYPE_UINT8, dims: [1]}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "")
			assert.ErrorContains(t, err, "validation failed")
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [\n"), "")
	assert.ErrorContains(t, err, "invalid YAML")
}

func TestDriverNameDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultDriver, cfg.DriverName(ModelConfig{}))
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	reloaded := make(chan *Config, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, "", logger, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Len(t, w.Snapshot().Models, 2)

	updated := "version: \"1\"\nmodels: {}\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Empty(t, cfg.Models)
		assert.Empty(t, w.Snapshot().Models)
		assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
