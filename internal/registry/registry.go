// Package registry holds the authoritative identifier → target mapping of a
// metadata store.
package registry

import (
	"sort"
	"sync"

	"mdstore/internal/domain"
)

// Registry maps identifiers to live targets. It is safe for concurrent use.
// Its mutex is a leaf lock: no method calls out while holding it, so callers
// may hold their own locks around it, but must never hold it across I/O.
type Registry struct {
	mu      sync.RWMutex
	targets map[domain.ID]*domain.Target
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{targets: make(map[domain.ID]*domain.Target)}
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id domain.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[id]
	return ok
}

// Get returns the target registered under id.
func (r *Registry) Get(id domain.ID) (*domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// Register inserts t under its id. If the id is taken the registry is left
// untouched and a DuplicateIdentifierError is returned.
func (r *Registry) Register(t *domain.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[t.ID()]; ok {
		return &domain.DuplicateIdentifierError{ID: t.ID()}
	}
	r.targets[t.ID()] = t
	return nil
}

// Unregister removes id. Absent ids yield a NotFoundError and change nothing.
func (r *Registry) Unregister(id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; !ok {
		return domain.ErrNotFound("identifier %d is not registered", id)
	}
	delete(r.targets, id)
	return nil
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []domain.ID {
	r.mu.RLock()
	ids := make([]domain.ID, 0, len(r.targets))
	for id := range r.targets {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Missing returns the ids out of candidates that are not registered.
func (r *Registry) Missing(candidates []domain.ID) []domain.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []domain.ID
	for _, id := range candidates {
		if _, ok := r.targets[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
