// Package constraints provides the serializer registry and the built-in
// constraint kinds.
package constraints

import (
	"sort"
	"sync"

	"mdstore/internal/domain"
)

// Registry maps constraint kinds to serializers. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	serializers map[string]domain.ConstraintSerializer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{serializers: make(map[string]domain.ConstraintSerializer)}
}

// RegisterConstraintSerializer registers s for s.Kind(), replacing any previous one.
func (r *Registry) RegisterConstraintSerializer(s domain.ConstraintSerializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serializers[s.Kind()] = s
}

// Lookup returns the serializer for kind or a NoSerializerRegisteredError.
func (r *Registry) Lookup(kind string) (domain.ConstraintSerializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.serializers[kind]
	if !ok {
		return nil, &domain.NoSerializerRegisteredError{Kind: kind}
	}
	return s, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.serializers))
	for k := range r.serializers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// All returns the registered serializers ordered by kind.
func (r *Registry) All() []domain.ConstraintSerializer {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConstraintSerializer, 0, len(kinds))
	for _, k := range kinds {
		if s, ok := r.serializers[k]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Encode serializes c with the serializer of its kind.
func (r *Registry) Encode(c domain.Constraint) ([]byte, error) {
	s, err := r.Lookup(c.Kind())
	if err != nil {
		return nil, err
	}
	return s.Encode(c)
}

// Decode restores a constraint of kind from its targets and payload.
func (r *Registry) Decode(kind string, targets []domain.ID, payload []byte) (domain.Constraint, error) {
	s, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return s.Decode(targets, payload)
}
