package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mdstore/internal/domain"
)

// AddConstraintCollection stores c with its scope and any constraints it
// already holds.
func (g *SQLGateway) AddConstraintCollection(ctx context.Context, c *domain.ConstraintCollection) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_constraint_collection (id, description) VALUES (?, ?)`),
			int64(c.ID()), c.Description()); err != nil {
			return mapDBError(err, c.ID())
		}
		for _, id := range c.Scope() {
			if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_scope (collection_id, target_id) VALUES (?, ?)`),
				int64(c.ID()), int64(id)); err != nil {
				return fmt.Errorf("store scope of collection %d: %w", c.ID(), err)
			}
		}
		for i, r := range c.Constraints() {
			if err := g.insertConstraint(ctx, tx, c.ID(), i, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddConstraint appends r to the stored collection.
func (g *SQLGateway) AddConstraint(ctx context.Context, collectionID domain.ID, r domain.ConstraintRecord) error {
	if _, err := g.serializers.Lookup(r.Constraint.Kind()); err != nil {
		return err
	}
	return g.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, g.q(`SELECT 1 FROM mds_constraint_collection WHERE id = ?`),
			int64(collectionID)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound("constraint collection %d not found", collectionID)
		}
		if err != nil {
			return fmt.Errorf("lookup collection %d: %w", collectionID, err)
		}

		var next int
		if err := tx.QueryRowContext(ctx, g.q(`SELECT COALESCE(MAX(position) + 1, 0)
			FROM mds_constraint WHERE collection_id = ?`), int64(collectionID)).Scan(&next); err != nil {
			return fmt.Errorf("next constraint position: %w", err)
		}
		return g.insertConstraint(ctx, tx, collectionID, next, r)
	})
}

func (g *SQLGateway) insertConstraint(ctx context.Context, tx *sql.Tx, collectionID domain.ID, pos int, r domain.ConstraintRecord) error {
	payload, err := g.serializers.Encode(r.Constraint)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_constraint (id, collection_id, position, kind, payload)
		VALUES (?, ?, ?, ?, ?)`), r.ID, int64(collectionID), pos, r.Constraint.Kind(), string(payload)); err != nil {
		return fmt.Errorf("store constraint %s: %w", r.ID, err)
	}
	for i, id := range r.Constraint.TargetIDs() {
		if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_constraint_target (constraint_id, position, target_id)
			VALUES (?, ?, ?)`), r.ID, i, int64(id)); err != nil {
			return fmt.Errorf("store targets of constraint %s: %w", r.ID, err)
		}
	}
	return nil
}

// RemoveConstraintCollection deletes a collection with its scope and
// constraints.
func (g *SQLGateway) RemoveConstraintCollection(ctx context.Context, id domain.ID) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, g.q(`DELETE FROM mds_constraint_collection WHERE id = ?`), int64(id))
		if err != nil {
			return fmt.Errorf("remove collection %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove collection %d: %w", id, err)
		}
		if n == 0 {
			return domain.ErrNotFound("constraint collection %d not found", id)
		}
		return nil
	})
}

type constraintRow struct {
	id         string
	collection domain.ID
	kind       string
	payload    string
	targets    []domain.ID
}

// LoadConstraintCollections returns every stored collection with its
// constraints in insertion order. Kinds without a registered serializer fail
// the load.
func (g *SQLGateway) LoadConstraintCollections(ctx context.Context) ([]*domain.ConstraintCollection, error) {
	tx, err := g.read.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	type header struct {
		id   domain.ID
		desc string
	}
	var headers []header
	if err := g.scanRows(ctx, tx, `SELECT id, description FROM mds_constraint_collection ORDER BY id`,
		func(rows *sql.Rows) error {
			var h header
			var id int64
			if err := rows.Scan(&id, &h.desc); err != nil {
				return err
			}
			h.id = domain.ID(id)
			headers = append(headers, h)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}

	scopes := make(map[domain.ID][]domain.ID)
	if err := g.scanRows(ctx, tx, `SELECT collection_id, target_id FROM mds_scope`,
		func(rows *sql.Rows) error {
			var cid, tid int64
			if err := rows.Scan(&cid, &tid); err != nil {
				return err
			}
			scopes[domain.ID(cid)] = append(scopes[domain.ID(cid)], domain.ID(tid))
			return nil
		}); err != nil {
		return nil, fmt.Errorf("load scopes: %w", err)
	}

	var cons []*constraintRow
	byID := make(map[string]*constraintRow)
	if err := g.scanRows(ctx, tx, `SELECT id, collection_id, kind, payload FROM mds_constraint
		ORDER BY collection_id, position`,
		func(rows *sql.Rows) error {
			r := &constraintRow{}
			var cid int64
			if err := rows.Scan(&r.id, &cid, &r.kind, &r.payload); err != nil {
				return err
			}
			r.collection = domain.ID(cid)
			cons = append(cons, r)
			byID[r.id] = r
			return nil
		}); err != nil {
		return nil, fmt.Errorf("load constraints: %w", err)
	}

	if err := g.scanRows(ctx, tx, `SELECT constraint_id, target_id FROM mds_constraint_target
		ORDER BY constraint_id, position`,
		func(rows *sql.Rows) error {
			var cid string
			var tid int64
			if err := rows.Scan(&cid, &tid); err != nil {
				return err
			}
			if r, ok := byID[cid]; ok {
				r.targets = append(r.targets, domain.ID(tid))
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("load constraint targets: %w", err)
	}

	records := make(map[domain.ID][]domain.ConstraintRecord, len(headers))
	for _, r := range cons {
		decoded, err := g.serializers.Decode(r.kind, r.targets, []byte(r.payload))
		if err != nil {
			return nil, fmt.Errorf("load constraint %s: %w", r.id, err)
		}
		records[r.collection] = append(records[r.collection], domain.ConstraintRecord{ID: r.id, Constraint: decoded})
	}
	out := make([]*domain.ConstraintCollection, 0, len(headers))
	for _, h := range headers {
		out = append(out, domain.NewConstraintCollection(h.id, h.desc, scopes[h.id], records[h.id]...))
	}
	return out, nil
}

func (g *SQLGateway) scanRows(ctx context.Context, tx *sql.Tx, query string, scan func(*sql.Rows) error) error {
	rows, err := tx.QueryContext(ctx, g.q(query))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
