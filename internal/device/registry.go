package device

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the drivers available to the backend.
type Registry struct {
	drivers map[string]Driver
	mu      sync.RWMutex
}

// NewRegistry creates a new driver registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]Driver),
	}
}

// Register adds a driver to the registry.
func (r *Registry) Register(d Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.drivers[d.Name()]; ok {
		return ErrAlreadyRegistered
	}

	r.drivers[d.Name()] = d
	return nil
}

// Get retrieves a driver by name.
func (r *Registry) Get(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	return d, ok
}

// Names returns the registered driver names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Register adds a driver to the process-wide registry. Drivers built
// behind build tags call it from init.
func Register(d Driver) {
	if err := defaultRegistry.Register(d); err != nil {
		panic("device: Register " + d.Name() + ": " + err.Error())
	}
}

// Lookup finds a driver in the process-wide registry.
func Lookup(name string) (Driver, error) {
	d, ok := defaultRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotFound, name)
	}
	return d, nil
}

// Drivers lists the drivers in the process-wide registry.
func Drivers() []string {
	return defaultRegistry.Names()
}
