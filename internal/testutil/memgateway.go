package testutil

import (
	"context"
	"maps"
	"sort"
	"sync"

	"mdstore/internal/domain"
)

// MemoryGateway is a working in-process domain.PersistenceGateway. Several
// stores may share one instance to simulate concurrent processes.
type MemoryGateway struct {
	mu          sync.Mutex
	initialized bool
	targets     map[domain.ID]*domain.Target
	collections map[domain.ID]*domain.ConstraintCollection
	config      map[string]string
	kinds       map[string]struct{}

	Flushes int
	Closed  bool
}

// NewMemoryGateway creates an empty, uninitialized gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		targets:     make(map[domain.ID]*domain.Target),
		collections: make(map[domain.ID]*domain.ConstraintCollection),
		config:      make(map[string]string),
		kinds:       make(map[string]struct{}),
	}
}

// Initialize implements domain.PersistenceGateway.
func (g *MemoryGateway) Initialize(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
	g.initialized = true
	return nil
}

// DropIfExists implements domain.PersistenceGateway.
func (g *MemoryGateway) DropIfExists(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
	g.initialized = false
	return nil
}

func (g *MemoryGateway) reset() {
	g.targets = make(map[domain.ID]*domain.Target)
	g.collections = make(map[domain.ID]*domain.ConstraintCollection)
	g.config = make(map[string]string)
}

// TablesExist implements domain.PersistenceGateway.
func (g *MemoryGateway) TablesExist(_ context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized, nil
}

func (g *MemoryGateway) load(kind domain.TargetKind) []*domain.Target {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Target
	for _, t := range g.targets {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// LoadSchemas implements domain.PersistenceGateway.
func (g *MemoryGateway) LoadSchemas(_ context.Context) ([]*domain.Target, error) {
	return g.load(domain.KindSchema), nil
}

// LoadTables implements domain.PersistenceGateway.
func (g *MemoryGateway) LoadTables(_ context.Context) ([]*domain.Target, error) {
	return g.load(domain.KindTable), nil
}

// LoadColumns implements domain.PersistenceGateway.
func (g *MemoryGateway) LoadColumns(_ context.Context) ([]*domain.Target, error) {
	return g.load(domain.KindColumn), nil
}

// LoadConstraintCollections implements domain.PersistenceGateway.
func (g *MemoryGateway) LoadConstraintCollections(_ context.Context) ([]*domain.ConstraintCollection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*domain.ConstraintCollection, 0, len(g.collections))
	for _, c := range g.collections {
		out = append(out, copyCollection(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func copyCollection(c *domain.ConstraintCollection) *domain.ConstraintCollection {
	return domain.NewConstraintCollection(c.ID(), c.Description(), c.Scope(), c.Constraints()...)
}

// GetTargetByID implements domain.PersistenceGateway.
func (g *MemoryGateway) GetTargetByID(_ context.Context, id domain.ID) (*domain.Target, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.targets[id]
	if !ok {
		return nil, domain.ErrNotFound("target %d not found", id)
	}
	return t, nil
}

func (g *MemoryGateway) byName(kind domain.TargetKind, name string) []*domain.Target {
	var out []*domain.Target
	for _, t := range g.load(kind) {
		if t.Name() == name {
			out = append(out, t)
		}
	}
	return out
}

// GetSchemasByName implements domain.PersistenceGateway.
func (g *MemoryGateway) GetSchemasByName(_ context.Context, name string) ([]*domain.Target, error) {
	return g.byName(domain.KindSchema, name), nil
}

// GetTablesByName implements domain.PersistenceGateway.
func (g *MemoryGateway) GetTablesByName(_ context.Context, name string) ([]*domain.Target, error) {
	return g.byName(domain.KindTable, name), nil
}

// GetColumnsByName implements domain.PersistenceGateway.
func (g *MemoryGateway) GetColumnsByName(_ context.Context, name string) ([]*domain.Target, error) {
	return g.byName(domain.KindColumn, name), nil
}

// GetChildren implements domain.PersistenceGateway.
func (g *MemoryGateway) GetChildren(_ context.Context, parent domain.ID) ([]*domain.Target, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Target
	for _, t := range g.targets {
		if p, ok := t.Parent(); ok && p == parent {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (g *MemoryGateway) add(t *domain.Target) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.targets[t.ID()]; ok {
		return &domain.DuplicateIdentifierError{ID: t.ID()}
	}
	if p, ok := t.Parent(); ok {
		if _, ok := g.targets[p]; !ok {
			return domain.ErrValidation("parent %d of %s not stored", p, t)
		}
	}
	g.targets[t.ID()] = t
	return nil
}

// AddSchema implements domain.PersistenceGateway.
func (g *MemoryGateway) AddSchema(_ context.Context, t *domain.Target) error { return g.add(t) }

// AddTable implements domain.PersistenceGateway.
func (g *MemoryGateway) AddTable(_ context.Context, t *domain.Target) error { return g.add(t) }

// AddColumn implements domain.PersistenceGateway.
func (g *MemoryGateway) AddColumn(_ context.Context, t *domain.Target) error { return g.add(t) }

// Put stores t directly, bypassing duplicate checks. Tests use it to act as
// another writer.
func (g *MemoryGateway) Put(t *domain.Target) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.targets[t.ID()] = t
}

// Has reports whether id is stored.
func (g *MemoryGateway) Has(id domain.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.targets[id]
	return ok
}

func (g *MemoryGateway) remove(id domain.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.targets[id]; !ok {
		return domain.ErrNotFound("target %d not found", id)
	}
	g.removeSubtree(id)
	return nil
}

func (g *MemoryGateway) removeSubtree(id domain.ID) {
	for cid, t := range g.targets {
		if p, ok := t.Parent(); ok && p == id {
			g.removeSubtree(cid)
		}
	}
	delete(g.targets, id)
}

// RemoveSchema implements domain.PersistenceGateway.
func (g *MemoryGateway) RemoveSchema(_ context.Context, id domain.ID) error { return g.remove(id) }

// RemoveTable implements domain.PersistenceGateway.
func (g *MemoryGateway) RemoveTable(_ context.Context, id domain.ID) error { return g.remove(id) }

// RemoveColumn implements domain.PersistenceGateway.
func (g *MemoryGateway) RemoveColumn(_ context.Context, id domain.ID) error { return g.remove(id) }

// AddConstraintCollection implements domain.PersistenceGateway.
func (g *MemoryGateway) AddConstraintCollection(_ context.Context, c *domain.ConstraintCollection) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.collections[c.ID()]; ok {
		return &domain.DuplicateIdentifierError{ID: c.ID()}
	}
	g.collections[c.ID()] = copyCollection(c)
	return nil
}

// AddConstraint implements domain.PersistenceGateway.
func (g *MemoryGateway) AddConstraint(_ context.Context, collectionID domain.ID, r domain.ConstraintRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.kinds[r.Constraint.Kind()]; !ok {
		return &domain.NoSerializerRegisteredError{Kind: r.Constraint.Kind()}
	}
	c, ok := g.collections[collectionID]
	if !ok {
		return domain.ErrNotFound("constraint collection %d not found", collectionID)
	}
	g.collections[collectionID] = c.WithConstraint(r)
	return nil
}

// RemoveConstraintCollection implements domain.PersistenceGateway.
func (g *MemoryGateway) RemoveConstraintCollection(_ context.Context, id domain.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.collections[id]; !ok {
		return domain.ErrNotFound("constraint collection %d not found", id)
	}
	delete(g.collections, id)
	return nil
}

// RegisterConstraintSerializer implements domain.PersistenceGateway.
func (g *MemoryGateway) RegisterConstraintSerializer(s domain.ConstraintSerializer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kinds[s.Kind()] = struct{}{}
}

// SaveConfiguration implements domain.PersistenceGateway.
func (g *MemoryGateway) SaveConfiguration(_ context.Context, cfg map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	maps.Copy(g.config, cfg)
	return nil
}

// LoadConfiguration implements domain.PersistenceGateway.
func (g *MemoryGateway) LoadConfiguration(_ context.Context) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return maps.Clone(g.config), nil
}

// Flush implements domain.PersistenceGateway.
func (g *MemoryGateway) Flush(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Flushes++
	return nil
}

// Close implements domain.PersistenceGateway.
func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Closed = true
	return nil
}

var _ domain.PersistenceGateway = (*MemoryGateway)(nil)
