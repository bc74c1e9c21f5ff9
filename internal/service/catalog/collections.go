package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mdstore/internal/domain"
)

// CreateConstraintCollection creates a collection whose scope is the given
// targets. Every scope id must belong to the store; otherwise a
// ScopeTargetNotInStoreError is returned and nothing changes.
func (s *Store) CreateConstraintCollection(ctx context.Context, description string, scope ...domain.ID) (_ *domain.ConstraintCollection, err error) {
	defer s.track("create_collection")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	missing, err := s.missingLocked(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &domain.ScopeTargetNotInStoreError{IDs: missing}
	}

	for attempt := 0; ; attempt++ {
		id := s.alloc.RandomCollectionID(s.collectionTaken)
		c := domain.NewConstraintCollection(id, description, scope)
		if s.gw != nil {
			if err := s.gw.AddConstraintCollection(ctx, c); err != nil {
				var dup *domain.DuplicateIdentifierError
				if errors.As(err, &dup) && attempt < s.maxRetries {
					s.lostCollections[id] = struct{}{}
					s.metrics.RecordIDRetry()
					continue
				}
				return nil, fmt.Errorf("persist constraint collection: %w", err)
			}
		}
		s.collections[id] = c
		s.updateGauges()
		s.logger.Debug("constraint collection created", "id", id, "scope", len(c.Scope()))
		return c, nil
	}
}

func (s *Store) collectionTaken(id domain.ID) bool {
	if _, ok := s.collections[id]; ok {
		return true
	}
	_, lost := s.lostCollections[id]
	return lost
}

// missingLocked returns the ids that are neither registered nor hydratable.
func (s *Store) missingLocked(ctx context.Context, candidates []domain.ID) ([]domain.ID, error) {
	var missing []domain.ID
	for _, id := range s.reg.Missing(candidates) {
		if s.gw == nil {
			missing = append(missing, id)
			continue
		}
		if _, err := s.resolveLocked(ctx, id); err != nil {
			var nf *domain.NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// AddConstraint appends c to a collection. Every target c references must be
// part of the store; the collection scope is declarative and not enforced.
func (s *Store) AddConstraint(ctx context.Context, collectionID domain.ID, c domain.Constraint) (_ domain.ConstraintRecord, err error) {
	defer s.track("add_constraint")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.ConstraintRecord{}, err
	}
	coll, ok := s.collections[collectionID]
	if !ok {
		return domain.ConstraintRecord{}, domain.ErrNotFound("constraint collection %d not found", collectionID)
	}
	if _, err := s.serializers.Lookup(c.Kind()); err != nil {
		return domain.ConstraintRecord{}, err
	}
	missing, err := s.missingLocked(ctx, c.TargetIDs())
	if err != nil {
		return domain.ConstraintRecord{}, err
	}
	if len(missing) > 0 {
		return domain.ConstraintRecord{}, &domain.ConstraintTargetsNotInStoreError{IDs: missing}
	}

	rec := domain.ConstraintRecord{ID: domain.NewID(), Constraint: c}
	if s.gw != nil {
		if err := s.gw.AddConstraint(ctx, collectionID, rec); err != nil {
			return domain.ConstraintRecord{}, fmt.Errorf("persist %s constraint: %w", c.Kind(), err)
		}
	}
	s.collections[collectionID] = coll.WithConstraint(rec)
	return rec, nil
}

// ConstraintCollection returns the collection with the given id as of the
// call. Later AddConstraint calls do not show up in the returned value.
func (s *Store) ConstraintCollection(id domain.ID) (*domain.ConstraintCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, domain.ErrNotFound("constraint collection %d not found", id)
	}
	return c, nil
}

// ConstraintCollections returns all collections ordered by id.
func (s *Store) ConstraintCollections() []*domain.ConstraintCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCollections()
}

func (s *Store) sortedCollections() []*domain.ConstraintCollection {
	out := make([]*domain.ConstraintCollection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Constraints returns the constraints of a collection in insertion order.
func (s *Store) Constraints(collectionID domain.ID) ([]domain.ConstraintRecord, error) {
	c, err := s.ConstraintCollection(collectionID)
	if err != nil {
		return nil, err
	}
	return c.Constraints(), nil
}

// Scope returns the scope of a collection.
func (s *Store) Scope(collectionID domain.ID) ([]domain.ID, error) {
	c, err := s.ConstraintCollection(collectionID)
	if err != nil {
		return nil, err
	}
	return c.Scope(), nil
}

// RemoveConstraintCollection removes a collection with all of its constraints.
func (s *Store) RemoveConstraintCollection(ctx context.Context, id domain.ID) (err error) {
	defer s.track("remove_collection")(&err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.collections[id]; !ok {
		return domain.ErrNotFound("constraint collection %d not found", id)
	}
	if s.gw != nil {
		if err := s.gw.RemoveConstraintCollection(ctx, id); err != nil {
			return fmt.Errorf("remove constraint collection %d: %w", id, err)
		}
	}
	delete(s.collections, id)
	s.updateGauges()
	return nil
}

// EncodeConstraint renders the payload of c with its registered serializer.
func (s *Store) EncodeConstraint(c domain.Constraint) ([]byte, error) {
	return s.serializers.Encode(c)
}

// DecodeConstraint builds a constraint of kind from its targets and payload.
func (s *Store) DecodeConstraint(kind string, targets []domain.ID, payload []byte) (domain.Constraint, error) {
	return s.serializers.Decode(kind, targets, payload)
}

// ConstraintKinds lists the registered constraint kinds.
func (s *Store) ConstraintKinds() []string {
	return s.serializers.Kinds()
}
