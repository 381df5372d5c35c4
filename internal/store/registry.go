package store

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryFrozen is returned by Register once a run has started.
var ErrRegistryFrozen = errors.New("store registry is frozen")

// Registered pairs a store identifier with its plugin.
type Registered struct {
	ID     string
	Plugin Plugin
}

// Registry keeps a mapping from store identifiers to their plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
	frozen  bool
}

// Default is the process-wide registry populated at start-up.
var Default = NewRegistry()

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{}}
}

// Register adds a plugin under id. Duplicate IDs, nil plugins and plugins
// that declare no product types are rejected.
func (r *Registry) Register(id string, plugin Plugin) error {
	if id == "" {
		return fmt.Errorf("store id cannot be empty")
	}
	if plugin == nil {
		return fmt.Errorf("store %s: plugin cannot be nil", id)
	}
	if len(plugin.SupportedTypes()) == 0 {
		return &UnimplementedError{Store: id, Op: "SupportedTypes"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("store %s: %w", id, ErrRegistryFrozen)
	}
	if r.plugins == nil {
		r.plugins = map[string]Plugin{}
	}
	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("store %s is already registered", id)
	}

	r.plugins[id] = plugin
	r.order = append(r.order, id)
	return nil
}

// MustRegister is Register for start-up code; it panics on error.
func (r *Registry) MustRegister(id string, plugin Plugin) {
	if err := r.Register(id, plugin); err != nil {
		panic(err)
	}
}

// Resolve returns a plugin by id or an error if it is absent.
func (r *Registry) Resolve(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if plugin, ok := r.plugins[id]; ok {
		return plugin, nil
	}
	return nil, fmt.Errorf("store %s is not registered", id)
}

// Plugins lists registered plugins in registration order.
func (r *Registry) Plugins() []Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registered, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Registered{ID: id, Plugin: r.plugins[id]})
	}
	return out
}

// Freeze stops further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Register adds a plugin to the Default registry.
func Register(id string, plugin Plugin) error {
	return Default.Register(id, plugin)
}

// MustRegister adds a plugin to the Default registry or panics.
func MustRegister(id string, plugin Plugin) {
	Default.MustRegister(id, plugin)
}
