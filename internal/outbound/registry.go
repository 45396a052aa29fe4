package outbound

import (
	"fmt"
	"io"
	"sync"
)

// Backend is one live protocol adapter bound to a guest instance.
type Backend interface {
	io.Closer

	// Scheme returns the policy scheme this backend authorizes against,
	// e.g. "redis" or "mysql".
	Scheme() string
}

// Factory creates backend adapters for guest instances.
type Factory interface {
	// Scheme returns the policy scheme of the backends this factory builds.
	Scheme() string

	// New builds a backend bound to the given instance.
	New(inst *Instance) (Backend, error)
}

// Registry manages the available backend factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering two factories for one scheme is a
// configuration bug.
func (r *Registry) Register(factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme := factory.Scheme()
	if _, exists := r.factories[scheme]; exists {
		return fmt.Errorf("backend factory %s already registered", scheme)
	}
	r.factories[scheme] = factory
	return nil
}

// Get retrieves a factory by scheme.
func (r *Registry) Get(scheme string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[scheme]
	return factory, ok
}

// List returns every registered factory.
func (r *Registry) List() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]Factory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}
	return factories
}

// CreateBackends builds one backend per requested scheme, bound to inst and
// registered for teardown with it. On failure every backend created so far
// is closed.
func (r *Registry) CreateBackends(inst *Instance, schemes []string) (map[string]Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make(map[string]Backend)
	for _, scheme := range schemes {
		factory, ok := r.factories[scheme]
		if !ok {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("backend %s not found", scheme)
		}

		backend, err := factory.New(inst)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to create %s backend: %w", scheme, err)
		}
		backends[scheme] = backend
	}
	for _, backend := range backends {
		inst.AddCloser(backend)
	}
	return backends, nil
}
