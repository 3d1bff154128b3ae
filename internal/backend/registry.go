package backend

import (
	"errors"
	"sort"
	"sync"
)

// Registry manages live executors by name.
type Registry struct {
	executors map[string]Executor
	mu        sync.RWMutex
}

// NewRegistry creates a new executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor to the registry.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executors[e.Name()]; ok {
		return ErrAlreadyRegistered
	}

	r.executors[e.Name()] = e
	return nil
}

// Get retrieves an executor by name.
func (r *Registry) Get(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[name]
	return e, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove closes and removes an executor.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	e, ok := r.executors[name]
	delete(r.executors, name)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return e.Close()
}

// Close closes and removes all registered executors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, e := range r.executors {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.executors, name)
	}

	return errors.Join(errs...)
}
