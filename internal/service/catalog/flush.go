package catalog

import (
	"context"
	"fmt"

	"mdstore/internal/domain"
	"mdstore/internal/snapshot"
)

// Flush makes the current state durable. In-memory stores write a snapshot to
// their sink and fail with NoStoreLocationError without one; durable stores
// flush the gateway. Flushing twice in a row is harmless.
func (s *Store) Flush(ctx context.Context) (err error) {
	defer s.track("flush")(&err)
	defer func() { s.metrics.RecordFlush(err) }()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if s.gw != nil {
		if err := s.gw.Flush(ctx); err != nil {
			return fmt.Errorf("flush gateway: %w", err)
		}
		return nil
	}
	if s.sink == nil {
		return &domain.NoStoreLocationError{}
	}
	doc, err := s.snapshotLocked()
	if err != nil {
		return err
	}
	if err := snapshot.Save(ctx, s.sink, doc); err != nil {
		return err
	}
	s.logger.Info("snapshot written", "location", s.sink.String(),
		"schemas", len(doc.Schemas), "collections", len(doc.Collections))
	return nil
}

// Close flushes and releases the gateway. Later mutations fail; Close itself
// may be called again.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var flushErr error
	if s.gw != nil || s.sink != nil {
		flushErr = s.flushLocked(ctx)
	}
	s.closed = true
	if s.gw != nil {
		if err := s.gw.Close(); err != nil && flushErr == nil {
			return fmt.Errorf("close gateway: %w", err)
		}
	}
	return flushErr
}

// Snapshot returns the current state as a snapshot document.
func (s *Store) Snapshot() (*snapshot.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() (*snapshot.Document, error) {
	doc := snapshot.New(s.codec.TableBits(), s.codec.ColumnBits())
	for _, schema := range s.targets(s.schemaOrder) {
		sd := snapshot.SchemaDoc{
			ID:          schema.ID(),
			Name:        schema.Name(),
			Description: schema.Description(),
			Location:    locationDoc(schema.Location()),
		}
		for _, table := range s.targets(s.children[schema.ID()]) {
			td := snapshot.TableDoc{
				ID:          table.ID(),
				Name:        table.Name(),
				Description: table.Description(),
				Location:    locationDoc(table.Location()),
			}
			for _, col := range s.targets(s.children[table.ID()]) {
				td.Columns = append(td.Columns, snapshot.ColumnDoc{
					ID:          col.ID(),
					Name:        col.Name(),
					Description: col.Description(),
					Location:    locationDoc(col.Location()),
				})
			}
			sd.Tables = append(sd.Tables, td)
		}
		doc.Schemas = append(doc.Schemas, sd)
	}

	for _, c := range s.sortedCollections() {
		cd := snapshot.CollectionDoc{
			ID:          c.ID(),
			Description: c.Description(),
			Scope:       c.Scope(),
		}
		for _, rec := range c.Constraints() {
			payload, err := s.serializers.Encode(rec.Constraint)
			if err != nil {
				return nil, fmt.Errorf("encode constraint %s: %w", rec.ID, err)
			}
			cd.Constraints = append(cd.Constraints, snapshot.ConstraintDoc{
				ID:      rec.ID,
				Kind:    rec.Constraint.Kind(),
				Targets: rec.Constraint.TargetIDs(),
				Payload: string(payload),
			})
		}
		doc.Collections = append(doc.Collections, cd)
	}
	return doc, nil
}

func locationDoc(loc domain.Location) map[string]string {
	if loc.Len() == 0 {
		return nil
	}
	return loc.Properties()
}

// restore registers every target of doc, so a document reusing an identifier
// fails with DuplicateIdentifierError. Scopes and constraint targets were
// validated when created and may name targets removed since. Only called
// before the store is shared.
func (s *Store) restore(doc *snapshot.Document) error {
	for _, sd := range doc.Schemas {
		schema := domain.NewTarget(domain.KindSchema, sd.ID, 0, sd.Name, sd.Description,
			domain.LocationFromProperties(sd.Location))
		if err := s.attach(schema); err != nil {
			return err
		}
		for _, td := range sd.Tables {
			table := domain.NewTarget(domain.KindTable, td.ID, sd.ID, td.Name, td.Description,
				domain.LocationFromProperties(td.Location))
			if err := s.attach(table); err != nil {
				return err
			}
			for _, cd := range td.Columns {
				col := domain.NewTarget(domain.KindColumn, cd.ID, td.ID, cd.Name, cd.Description,
					domain.LocationFromProperties(cd.Location))
				if err := s.attach(col); err != nil {
					return err
				}
			}
		}
	}

	for _, cd := range doc.Collections {
		if _, ok := s.collections[cd.ID]; ok {
			return domain.ErrValidation("constraint collection %d appears twice", cd.ID)
		}
		records := make([]domain.ConstraintRecord, 0, len(cd.Constraints))
		for _, con := range cd.Constraints {
			c, err := s.serializers.Decode(con.Kind, con.Targets, []byte(con.Payload))
			if err != nil {
				return fmt.Errorf("decode constraint %s: %w", con.ID, err)
			}
			records = append(records, domain.ConstraintRecord{ID: con.ID, Constraint: c})
		}
		s.collections[cd.ID] = domain.NewConstraintCollection(cd.ID, cd.Description, cd.Scope, records...)
	}
	return nil
}
