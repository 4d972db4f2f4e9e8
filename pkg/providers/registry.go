package providers

import "fmt"

// Registry resolves a provider name (as configured per agent/per call) to
// its Driver, the same name-keyed lookup the orchestrator's fallback
// cursor walks in order.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds an empty registry; register each configured provider
// with Register before handing the registry to the orchestrator.
func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

// Register adds or replaces the driver known by name (e.g. "openai",
// "anthropic", a user-chosen alias for a specific model deployment).
func (r *Registry) Register(name string, d Driver) {
	r.drivers[name] = d
}

// Get returns the driver registered under name.
func (r *Registry) Get(name string) (Driver, error) {
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("providers: no driver registered for %q", name)
	}
	return d, nil
}

// Names returns every registered provider name, in no particular order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	return out
}
