package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Locate(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, repo.Ensure())

	_, err := repo.Locate("yolov5", 1)
	assert.ErrorIs(t, err, ErrModelMissing)

	path := repo.ArtifactPath("yolov5", 1)
	assert.Equal(t, filepath.Join(repo.Root(), "yolov5", "1", "model.rknn"), path)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("rknn"), 0o644))

	got, err := repo.Locate("yolov5", 1)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestRepository_ReadConfigFile(t *testing.T) {
	repo := NewRepository(t.TempDir())
	require.NoError(t, os.MkdirAll(repo.ModelDir("m"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo.ModelDir("m"), "config.json"), []byte(`{}`), 0o644))

	data, err := repo.ReadConfigFile("m", "config.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = repo.ReadConfigFile("m", "missing.json")
	assert.Error(t, err)
}
