package model

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the current loading status of a model.
type Status string

const (
	// StatusUnloaded indicates that the model is not loaded.
	StatusUnloaded Status = "unloaded"

	// StatusLoading indicates that the model is being loaded.
	StatusLoading Status = "loading"

	// StatusLoaded indicates that the model is loaded.
	StatusLoaded Status = "loaded"

	// StatusFailed indicates that the model failed to load.
	StatusFailed Status = "failed"

	// StatusUnloading indicates that the model is being unloaded.
	StatusUnloading Status = "unloading"
)

// Model is one configured model and its load state.
type Model struct {
	Descriptor *Descriptor `json:"-"`
	ID         string      `json:"id"`
	Version    int         `json:"version"`
	Path       string      `json:"path"`
	Driver     string      `json:"driver"`

	mu       sync.RWMutex
	status   Status
	loadedAt *time.Time
	err      string
}

// NewModel creates an unloaded model entry.
func NewModel(id string, version int, path, driver string, desc *Descriptor) *Model {
	return &Model{
		Descriptor: desc,
		ID:         id,
		Version:    version,
		Path:       path,
		Driver:     driver,
		status:     StatusUnloaded,
	}
}

// SetStatus sets the status of the model.
func (m *Model) SetStatus(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = status
	if status == StatusLoaded {
		now := time.Now()
		m.loadedAt = &now
		m.err = ""
	}
}

// SetError marks the model failed with err.
func (m *Model) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = StatusFailed
	m.err = err.Error()
}

// Status returns the current status.
func (m *Model) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

// Error returns the last load error message, if any.
func (m *Model) Error() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.err
}

// LoadedAt returns when the model finished loading.
func (m *Model) LoadedAt() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.loadedAt
}

// SupportsFirstDimBatching reports whether the model batches along its
// first dimension. It is only answerable once the model is loaded.
func (m *Model) SupportsFirstDimBatching() (bool, error) {
	if s := m.Status(); s != StatusLoaded {
		return false, fmt.Errorf("%w: %s is %s", ErrNotReady, m.ID, s)
	}
	return m.Descriptor.MaxBatchSize() > 0, nil
}

// Registry stores configured models.
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Set adds a model to the registry, replacing any entry with the same ID.
func (r *Registry) Set(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[m.ID] = m
}

// Get returns the model with the given ID.
func (r *Registry) Get(id string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return m, nil
}

// List returns all models sorted by ID.
func (r *Registry) List() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	return models
}

// Delete deletes the model with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.models, id)
}
