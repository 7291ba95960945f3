// Package providerselect implements spec.md §4.7's provider-instance
// selection (ROUND_ROBIN/WEIGHTED/HEALTH_BASED/CAPABILITY_BASED) and
// template-compatibility validation, plus the background health-check loop
// and weighted-round-robin policy supplemented from original_source/ (see
// SPEC_FULL.md "Supplemented features").
package providerselect

import "sync"

// Instance is one registered provider instance, per spec.md §6's
// `provider.providers[]` configuration table: `{name, type, enabled,
// priority, weight, capabilities, config}`.
type Instance struct {
	Name         string
	Type         string
	Enabled      bool
	Priority     int
	Weight       int
	Capabilities []string

	mu      sync.RWMutex
	healthy bool
}

// NewInstance constructs an Instance, healthy by default until the health
// loop (health.go) has run its first probe.
func NewInstance(name, typ string, priority, weight int, capabilities []string) *Instance {
	return &Instance{Name: name, Type: typ, Enabled: true, Priority: priority, Weight: weight, Capabilities: capabilities, healthy: true}
}

func (i *Instance) SetHealthy(healthy bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.healthy = healthy
}

func (i *Instance) Healthy() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.healthy
}

// HasCapability reports whether this instance declares the given capability
// (typically a template's provider_api hint, e.g. "EC2Fleet").
func (i *Instance) HasCapability(cap string) bool {
	for _, c := range i.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Registry holds the configured provider instances, filtering disabled ones
// from every selection policy.
type Registry struct {
	mu        sync.RWMutex
	instances []*Instance
}

func NewRegistry(instances ...*Instance) *Registry {
	return &Registry{instances: instances}
}

// Enabled returns the currently enabled instances, in registration order.
func (r *Registry) Enabled() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	return out
}

// All returns every registered instance, including disabled ones (used by the health loop).
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Instance{}, r.instances...)
}
