// Package source resolves compiled model artifacts in the local model
// repository. The repository is laid out as
//
//	<models_dir>/<model>/<version>/model.rknn
//
// with an optional JSON model configuration next to the version
// directories.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ekisa-team/rkbackend/internal/config"
)

// ErrModelMissing is returned when a model artifact is not in the repository.
var ErrModelMissing = errors.New("model artifact not found in repository")

// Repository is a local model repository.
type Repository struct {
	root string
}

// NewRepository returns a repository rooted at dir.
func NewRepository(dir string) *Repository {
	return &Repository{root: dir}
}

// Root returns the repository directory.
func (r *Repository) Root() string {
	return r.root
}

// Ensure creates the repository directory if it does not exist.
func (r *Repository) Ensure() error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory %s: %w", r.root, err)
	}
	return nil
}

// ModelDir returns the directory holding every version of a model.
func (r *Repository) ModelDir(id string) string {
	return filepath.Join(r.root, id)
}

// ArtifactPath returns where the compiled model for id/version lives.
func (r *Repository) ArtifactPath(id string, version int) string {
	return filepath.Join(r.root, id, strconv.Itoa(version), config.DefaultModelFilename)
}

// Locate returns the artifact path for id/version after checking that it
// exists.
func (r *Repository) Locate(id string, version int) (string, error) {
	path := r.ArtifactPath(id, version)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelMissing, path)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModelMissing, path)
	}
	return path, nil
}

// ReadConfigFile reads a model configuration document. Relative names are
// resolved against the model directory.
func (r *Repository) ReadConfigFile(id, name string) ([]byte, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.ModelDir(id), name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config %s: %w", path, err)
	}
	return data, nil
}
