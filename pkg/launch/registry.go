package launch

import (
	"context"
	"sort"
	"sync"

	"github.com/chazu/harpoon/pkg/loader"
)

// Factory builds a component from its loaded unit
type Factory func(ctx context.Context, h loader.Handle) (Component, error)

// Entrypoint runs a launch target
type Entrypoint func(ctx context.Context, h loader.Handle, args []string) error

// Registry maps component names to factories and launch targets to entry
// points
type Registry struct {
	mu                sync.RWMutex
	factories         map[string]Factory
	entrypoints       map[string]Entrypoint
	defaultFactory    Factory
	defaultEntrypoint Entrypoint
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories:   make(map[string]Factory),
		entrypoints: make(map[string]Entrypoint),
	}
}

// RegisterComponent binds a factory to a component name
func (r *Registry) RegisterComponent(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// SetDefaultComponent sets the factory used for names without their own
func (r *Registry) SetDefaultComponent(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultFactory = f
}

// RegisterEntrypoint binds an entry point to a launch target
func (r *Registry) RegisterEntrypoint(target string, e Entrypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entrypoints[target] = e
}

// SetDefaultEntrypoint sets the entry point used for targets without their
// own
func (r *Registry) SetDefaultEntrypoint(e Entrypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultEntrypoint = e
}

// Factory returns the factory for name
func (r *Registry) Factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[name]; ok {
		return f, true
	}
	return r.defaultFactory, r.defaultFactory != nil
}

// Entrypoint returns the entry point for target
func (r *Registry) Entrypoint(target string) (Entrypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entrypoints[target]; ok {
		return e, true
	}
	return r.defaultEntrypoint, r.defaultEntrypoint != nil
}

// Components lists the names with a dedicated factory
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
