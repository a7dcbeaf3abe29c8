package engine

import (
	"context"
	"sort"
	"sync"

	"pipeline/internal/domain"
)

// Registry holds the adapters registered at startup. The set is effectively
// read-only after startup; the lock exists for safe construction and tests.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, replacing any previous adapter with the same id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.EngineID()] = a
}

// Get returns the adapter for engineID. Absence is not an error here; the
// orchestrator decides what a missing engine means.
func (r *Registry) Get(engineID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[engineID]
	return a, ok
}

// Available reports whether engineID is registered and currently healthy.
func (r *Registry) Available(ctx context.Context, engineID string) bool {
	a, ok := r.Get(engineID)
	if !ok {
		return false
	}
	return probe(ctx, a)
}

// List probes every adapter synchronously and returns descriptors sorted by
// engine id. A probe failure yields healthy=false, never an error.
func (r *Registry) List(ctx context.Context) []domain.EngineDescriptor {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	out := make([]domain.EngineDescriptor, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, domain.EngineDescriptor{
			EngineID:   a.EngineID(),
			EngineType: a.EngineType(),
			Healthy:    probe(ctx, a),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EngineID < out[j].EngineID })
	return out
}

// probe shields the registry from adapters that panic during a health check.
func probe(ctx context.Context, a Adapter) (healthy bool) {
	defer func() {
		if recover() != nil {
			healthy = false
		}
	}()
	return a.HealthCheck(ctx)
}
