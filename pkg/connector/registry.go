/**
 * @description
 * The registry maps provider names to connector factories. Each lookup builds a
 * fresh connector, so callers never share per-provider state.
 */

package connector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/finmind/banksync-service/internal/domain"
)

// Factory builds a connector instance.
type Factory func() Connector

// Registry maps provider names to connector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Panics on an empty or duplicate name.
func (r *Registry) Register(name string, factory Factory) {
	key := strings.TrimSpace(name)
	if key == "" {
		panic("connector registry: empty provider name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		panic("connector registry: duplicate provider " + key)
	}
	r.factories[key] = factory
}

// Get instantiates the connector registered under name.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, available: [%s]", domain.ErrUnknownProvider, name, strings.Join(r.Providers(), ", "))
	}
	return factory(), nil
}

// Providers returns the registered provider names in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
