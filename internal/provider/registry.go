package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory opens a backend. The factory owns reading its own settings.
type Factory func(ctx context.Context) (Backend, error)

// Registry maps backend type names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend '%s' already registered", name)
	}

	r.factories[name] = f
	return nil
}

// Open builds the backend registered under name.
func (r *Registry) Open(ctx context.Context, name string) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: '%s' (known: %v)", ErrUnknownBackend, name, r.Names())
	}

	b, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend '%s': %w", name, err)
	}
	return b, nil
}

// Names returns registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
