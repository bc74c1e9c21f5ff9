package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mdstore/internal/domain"
)

// AddSchema creates a schema with a fresh identifier.
func (s *Store) AddSchema(ctx context.Context, name, description string, loc domain.Location) (_ *domain.Target, err error) {
	defer s.track("add_schema")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.addTarget(ctx, domain.KindSchema, 0, name, description, loc)
}

// AddTable creates a table below schemaID, which must belong to the store.
func (s *Store) AddTable(ctx context.Context, schemaID domain.ID, name, description string, loc domain.Location) (_ *domain.Target, err error) {
	defer s.track("add_table")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.requireParent(ctx, schemaID, domain.KindSchema); err != nil {
		return nil, err
	}
	return s.addTarget(ctx, domain.KindTable, schemaID, name, description, loc)
}

// AddColumn creates a column below tableID, which must belong to the store.
func (s *Store) AddColumn(ctx context.Context, tableID domain.ID, name, description string, loc domain.Location) (_ *domain.Target, err error) {
	defer s.track("add_column")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.requireParent(ctx, tableID, domain.KindTable); err != nil {
		return nil, err
	}
	return s.addTarget(ctx, domain.KindColumn, tableID, name, description, loc)
}

func (s *Store) requireParent(ctx context.Context, id domain.ID, kind domain.TargetKind) error {
	t, err := s.resolveLocked(ctx, id)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return domain.ErrValidation("%s %d is not part of this store", kind, id)
		}
		return err
	}
	if t.Kind() != kind {
		return domain.ErrValidation("%d is a %s, not a %s", id, t.Kind(), kind)
	}
	return nil
}

// addTarget mints an id, registers the target, mirrors it and links it into
// the tree. Called with mu held for writing.
func (s *Store) addTarget(ctx context.Context, kind domain.TargetKind, parent domain.ID, name, description string, loc domain.Location) (*domain.Target, error) {
	for attempt := 0; ; attempt++ {
		id, err := s.allocate(kind, parent)
		if err != nil {
			return nil, err
		}
		t := domain.NewTarget(kind, id, parent, name, description, loc)
		if err := s.reg.Register(t); err != nil {
			return nil, err
		}

		if s.gw != nil {
			if err := s.persistTarget(ctx, t); err != nil {
				_ = s.reg.Unregister(id)
				var dup *domain.DuplicateIdentifierError
				if errors.As(err, &dup) && attempt < s.maxRetries {
					s.lost[id] = struct{}{}
					s.metrics.RecordIDRetry()
					s.logger.Warn("identifier taken in backing store, retrying",
						"kind", kind, "id", id, "attempt", attempt+1)
					continue
				}
				return nil, fmt.Errorf("persist %s %q: %w", kind, name, err)
			}
		}

		s.link(t)
		s.updateGauges()
		s.logger.Debug("target added", "kind", kind, "id", id, "name", name)
		return t, nil
	}
}

func (s *Store) allocate(kind domain.TargetKind, parent domain.ID) (domain.ID, error) {
	switch kind {
	case domain.KindSchema:
		return s.alloc.UnusedSchemaID(len(s.schemaOrder))
	case domain.KindTable:
		return s.alloc.UnusedTableID(parent, len(s.children[parent]))
	default:
		return s.alloc.UnusedColumnID(parent, len(s.children[parent]))
	}
}

func (s *Store) persistTarget(ctx context.Context, t *domain.Target) error {
	switch t.Kind() {
	case domain.KindSchema:
		return s.gw.AddSchema(ctx, t)
	case domain.KindTable:
		return s.gw.AddTable(ctx, t)
	default:
		return s.gw.AddColumn(ctx, t)
	}
}

// RemoveSchema removes a schema with all of its tables and columns.
func (s *Store) RemoveSchema(ctx context.Context, id domain.ID) (err error) {
	defer s.track("remove_schema")(&err)
	return s.removeTarget(ctx, id, domain.KindSchema)
}

// RemoveTable removes a table with all of its columns.
func (s *Store) RemoveTable(ctx context.Context, id domain.ID) (err error) {
	defer s.track("remove_table")(&err)
	return s.removeTarget(ctx, id, domain.KindTable)
}

// RemoveColumn removes a column.
func (s *Store) RemoveColumn(ctx context.Context, id domain.ID) (err error) {
	defer s.track("remove_column")(&err)
	return s.removeTarget(ctx, id, domain.KindColumn)
}

func (s *Store) removeTarget(ctx context.Context, id domain.ID, kind domain.TargetKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, err := s.resolveLocked(ctx, id)
	if err != nil {
		return err
	}
	if t.Kind() != kind {
		return domain.ErrValidation("%d is a %s, not a %s", id, t.Kind(), kind)
	}

	if s.gw != nil {
		var gwErr error
		switch kind {
		case domain.KindSchema:
			gwErr = s.gw.RemoveSchema(ctx, id)
		case domain.KindTable:
			gwErr = s.gw.RemoveTable(ctx, id)
		default:
			gwErr = s.gw.RemoveColumn(ctx, id)
		}
		if gwErr != nil {
			var pf *domain.PartialFailureError
			if errors.As(gwErr, &pf) {
				s.dropTargets(pf.Removed)
				s.logger.Warn("removal partially applied",
					"kind", kind, "id", id, "removed", len(pf.Removed), "error", pf.Err)
				return gwErr
			}
			return fmt.Errorf("remove %s: %w", t, gwErr)
		}
	}

	s.dropTargets(s.subtree(id))
	s.logger.Debug("target removed", "kind", kind, "id", id)
	return nil
}

// subtree returns id and all of its loaded descendants.
func (s *Store) subtree(id domain.ID) []domain.ID {
	out := []domain.ID{id}
	for _, child := range s.children[id] {
		out = append(out, s.subtree(child)...)
	}
	return out
}

// dropTargets unregisters and unlinks ids with everything loaded below them,
// leaves first. Unknown ids are skipped.
func (s *Store) dropTargets(removed []domain.ID) {
	var all []domain.ID
	for _, id := range removed {
		if s.reg.Contains(id) {
			all = append(all, s.subtree(id)...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return s.codec.KindOf(all[i]) > s.codec.KindOf(all[j])
	})
	for _, id := range all {
		t, ok := s.reg.Get(id)
		if !ok {
			continue
		}
		_ = s.reg.Unregister(id)
		s.unlink(t)
	}
	s.updateGauges()
}

// resolveLocked returns a registered target, hydrating it (and any missing
// ancestors) from the gateway on a miss. Called with mu held for writing.
func (s *Store) resolveLocked(ctx context.Context, id domain.ID) (*domain.Target, error) {
	if t, ok := s.reg.Get(id); ok {
		return t, nil
	}
	if s.gw == nil {
		return nil, domain.ErrNotFound("target %d not found", id)
	}
	t, err := s.gw.GetTargetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.adoptLocked(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// adoptLocked links a target read from the gateway into the graph after its
// ancestors. Called with mu held for writing.
func (s *Store) adoptLocked(ctx context.Context, t *domain.Target) error {
	if p, ok := t.Parent(); ok {
		if _, err := s.resolveLocked(ctx, p); err != nil {
			return fmt.Errorf("hydrate parent of %d: %w", t.ID(), err)
		}
	}
	if err := s.attach(t); err != nil {
		return err
	}
	delete(s.lost, t.ID())
	s.updateGauges()
	s.logger.Debug("target hydrated", "kind", t.Kind(), "id", t.ID())
	return nil
}

// hydrate merges the targets load reads from the gateway into the graph.
// keep filters them; nil keeps all. Memory stores return at once. Targets
// another writer removed stay until this store removes them.
func (s *Store) hydrate(ctx context.Context, load func(context.Context) ([]*domain.Target, error), keep func(*domain.Target) bool) error {
	if s.gw == nil {
		return nil
	}
	found, err := load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, t := range found {
		if s.reg.Contains(t.ID()) || (keep != nil && !keep(t)) {
			continue
		}
		if err := s.adoptLocked(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// TargetByID returns the target registered under id. Durable stores consult
// the gateway on a miss.
func (s *Store) TargetByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	s.mu.RLock()
	t, ok := s.reg.Get(id)
	durable := s.gw != nil
	s.mu.RUnlock()
	if ok {
		return t, nil
	}
	if !durable {
		return nil, domain.ErrNotFound("target %d not found", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.resolveLocked(ctx, id)
}

// SchemaByID returns the schema with the given id.
func (s *Store) SchemaByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	return s.targetOfKind(ctx, id, domain.KindSchema)
}

// TableByID returns the table with the given id.
func (s *Store) TableByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	return s.targetOfKind(ctx, id, domain.KindTable)
}

// ColumnByID returns the column with the given id.
func (s *Store) ColumnByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	return s.targetOfKind(ctx, id, domain.KindColumn)
}

func (s *Store) targetOfKind(ctx context.Context, id domain.ID, kind domain.TargetKind) (*domain.Target, error) {
	if s.codec.KindOf(id) != kind {
		return nil, domain.ErrNotFound("%s %d not found", kind, id)
	}
	t, err := s.TargetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Schemas returns all schemas in creation order.
func (s *Store) Schemas(ctx context.Context) ([]*domain.Target, error) {
	if err := s.hydrate(ctx, s.loadSchemas, nil); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targets(s.schemaOrder), nil
}

func (s *Store) loadSchemas(ctx context.Context) ([]*domain.Target, error) {
	return s.gw.LoadSchemas(ctx)
}

// Tables returns the tables of a schema in creation order.
func (s *Store) Tables(ctx context.Context, schemaID domain.ID) ([]*domain.Target, error) {
	return s.childrenOf(ctx, schemaID, domain.KindSchema, "")
}

// Columns returns the columns of a table in creation order.
func (s *Store) Columns(ctx context.Context, tableID domain.ID) ([]*domain.Target, error) {
	return s.childrenOf(ctx, tableID, domain.KindTable, "")
}

// childrenOf lists the children of parent, only those called name unless
// name is empty. Durable stores first hydrate the parent and the matching
// stored children.
func (s *Store) childrenOf(ctx context.Context, parent domain.ID, kind domain.TargetKind, name string) ([]*domain.Target, error) {
	if s.gw != nil {
		if _, err := s.targetOfKind(ctx, parent, kind); err != nil {
			return nil, err
		}
		load := func(ctx context.Context) ([]*domain.Target, error) {
			return s.gw.GetChildren(ctx, parent)
		}
		if name != "" {
			load = func(ctx context.Context) ([]*domain.Target, error) {
				return s.loadByName(ctx, childKind(kind), name)
			}
		}
		if err := s.hydrate(ctx, load, func(t *domain.Target) bool {
			p, _ := t.Parent()
			return p == parent
		}); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkKind(parent, kind); err != nil {
		return nil, err
	}
	list := s.targets(s.children[parent])
	if name != "" {
		list = named(list, name)
	}
	return list, nil
}

func childKind(kind domain.TargetKind) domain.TargetKind {
	if kind == domain.KindSchema {
		return domain.KindTable
	}
	return domain.KindColumn
}

func (s *Store) loadByName(ctx context.Context, kind domain.TargetKind, name string) ([]*domain.Target, error) {
	switch kind {
	case domain.KindSchema:
		return s.gw.GetSchemasByName(ctx, name)
	case domain.KindTable:
		return s.gw.GetTablesByName(ctx, name)
	default:
		return s.gw.GetColumnsByName(ctx, name)
	}
}

func (s *Store) checkKind(id domain.ID, kind domain.TargetKind) error {
	t, ok := s.reg.Get(id)
	if !ok || t.Kind() != kind {
		return domain.ErrNotFound("%s %d not found", kind, id)
	}
	return nil
}

func (s *Store) targets(list []domain.ID) []*domain.Target {
	out := make([]*domain.Target, 0, len(list))
	for _, id := range list {
		if t, ok := s.reg.Get(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// SchemasByName returns every schema called name.
func (s *Store) SchemasByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if err := s.hydrateByName(ctx, domain.KindSchema, name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return named(s.targets(s.schemaOrder), name), nil
}

// SchemaByName returns the only schema called name.
func (s *Store) SchemaByName(ctx context.Context, name string) (*domain.Target, error) {
	matches, err := s.SchemasByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return unique(domain.KindSchema, name, matches)
}

func (s *Store) hydrateByName(ctx context.Context, kind domain.TargetKind, name string) error {
	return s.hydrate(ctx, func(ctx context.Context) ([]*domain.Target, error) {
		return s.loadByName(ctx, kind, name)
	}, nil)
}

// TablesByName returns every table of a schema called name.
func (s *Store) TablesByName(ctx context.Context, schemaID domain.ID, name string) ([]*domain.Target, error) {
	return s.childrenOf(ctx, schemaID, domain.KindSchema, name)
}

// TableByName returns the only table of a schema called name.
func (s *Store) TableByName(ctx context.Context, schemaID domain.ID, name string) (*domain.Target, error) {
	matches, err := s.TablesByName(ctx, schemaID, name)
	if err != nil {
		return nil, err
	}
	return unique(domain.KindTable, name, matches)
}

// ColumnsByName returns every column of a table called name.
func (s *Store) ColumnsByName(ctx context.Context, tableID domain.ID, name string) ([]*domain.Target, error) {
	return s.childrenOf(ctx, tableID, domain.KindTable, name)
}

// ColumnByName returns the only column of a table called name.
func (s *Store) ColumnByName(ctx context.Context, tableID domain.ID, name string) (*domain.Target, error) {
	matches, err := s.ColumnsByName(ctx, tableID, name)
	if err != nil {
		return nil, err
	}
	return unique(domain.KindColumn, name, matches)
}

// FindTablesByName searches all schemas for tables called name.
func (s *Store) FindTablesByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if err := s.hydrateByName(ctx, domain.KindTable, name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Target
	for _, schemaID := range s.schemaOrder {
		out = append(out, named(s.targets(s.children[schemaID]), name)...)
	}
	return out, nil
}

// FindColumnsByName searches all tables for columns called name.
func (s *Store) FindColumnsByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if err := s.hydrateByName(ctx, domain.KindColumn, name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Target
	for _, schemaID := range s.schemaOrder {
		for _, tableID := range s.children[schemaID] {
			out = append(out, named(s.targets(s.children[tableID]), name)...)
		}
	}
	return out, nil
}

func named(list []*domain.Target, name string) []*domain.Target {
	var out []*domain.Target
	for _, t := range list {
		if t.Name() == name {
			out = append(out, t)
		}
	}
	return out
}

func unique(kind domain.TargetKind, name string, matches []*domain.Target) (*domain.Target, error) {
	switch len(matches) {
	case 0:
		return nil, domain.ErrNotFound("%s %q not found", kind, name)
	case 1:
		return matches[0], nil
	default:
		return nil, &domain.AmbiguousNameError{Kind: kind, Name: name, Count: len(matches)}
	}
}
