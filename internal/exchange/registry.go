package exchange

import (
	"fmt"
	"strings"
	"sync"
)

// ID identifies a supported exchange. The set is closed: unknown keys are
// rejected at the boundary instead of being resolved dynamically.
type ID string

const (
	Binance ID = "binance"
)

// Factory builds an adapter bound to one credential set.
type Factory func(apiKey, apiSecret string) (Adapter, error)

// Registry maps the closed set of exchange identifiers to adapter
// constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[ID]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[ID]Factory)}
}

func (r *Registry) Register(id ID, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// Supported reports whether the exchange key names a registered adapter.
func (r *Registry) Supported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[ID(strings.ToLower(name))]
	return ok
}

// New constructs an adapter for the named exchange, rejecting unknown keys.
func (r *Registry) New(name, apiKey, apiSecret string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[ID(strings.ToLower(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported exchange %q", name)
	}
	return factory(apiKey, apiSecret)
}
