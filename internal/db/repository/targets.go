package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"mdstore/internal/domain"
)

const pgForeignKeyViolation = "23503"

// AddSchema implements domain.PersistenceGateway.
func (g *SQLGateway) AddSchema(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindSchema, t)
}

// AddTable implements domain.PersistenceGateway.
func (g *SQLGateway) AddTable(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindTable, t)
}

// AddColumn implements domain.PersistenceGateway.
func (g *SQLGateway) AddColumn(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindColumn, t)
}

func (g *SQLGateway) addTarget(ctx context.Context, kind domain.TargetKind, t *domain.Target) error {
	if t.Kind() != kind {
		return domain.ErrValidation("cannot store %s as a %s", t, kind)
	}
	return g.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_target (id, kind, name, description, parent_id)
			VALUES (?, ?, ?, ?, ?)`),
			int64(t.ID()), kind.String(), t.Name(), t.Description(), nullableParent(t))
		if err != nil {
			if isForeignKeyViolation(err) {
				p, _ := t.Parent()
				return domain.ErrValidation("parent %d of %s is not stored", p, t)
			}
			return mapDBError(err, t.ID())
		}
		return g.storeLocation(ctx, tx, t.ID(), t.Location())
	})
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// RemoveSchema deletes a schema with its tables and columns in one
// transaction.
func (g *SQLGateway) RemoveSchema(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindSchema, id)
}

// RemoveTable deletes a table with its columns in one transaction.
func (g *SQLGateway) RemoveTable(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindTable, id)
}

// RemoveColumn implements domain.PersistenceGateway.
func (g *SQLGateway) RemoveColumn(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindColumn, id)
}

func (g *SQLGateway) removeTarget(ctx context.Context, kind domain.TargetKind, id domain.ID) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, g.q(`SELECT kind FROM mds_target WHERE id = ?`), int64(id)).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && stored != kind.String()) {
			return domain.ErrNotFound("%s %d not found", kind, id)
		}
		if err != nil {
			return fmt.Errorf("lookup %s %d: %w", kind, id, err)
		}

		// Leaves first; locations go with their target.
		if kind == domain.KindSchema {
			if _, err := tx.ExecContext(ctx, g.q(`DELETE FROM mds_target WHERE parent_id IN
				(SELECT id FROM mds_target WHERE parent_id = ?)`), int64(id)); err != nil {
				return fmt.Errorf("remove columns of schema %d: %w", id, err)
			}
		}
		if kind != domain.KindColumn {
			if _, err := tx.ExecContext(ctx, g.q(`DELETE FROM mds_target WHERE parent_id = ?`), int64(id)); err != nil {
				return fmt.Errorf("remove children of %s %d: %w", kind, id, err)
			}
		}
		if _, err := tx.ExecContext(ctx, g.q(`DELETE FROM mds_target WHERE id = ?`), int64(id)); err != nil {
			return fmt.Errorf("remove %s %d: %w", kind, id, err)
		}
		return nil
	})
}

// GetTargetByID implements domain.PersistenceGateway.
func (g *SQLGateway) GetTargetByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	targets, err := g.queryTargets(ctx, "t.id = ?", int64(id))
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, domain.ErrNotFound("target %d not found", id)
	}
	return targets[0], nil
}

// GetSchemasByName implements domain.PersistenceGateway.
func (g *SQLGateway) GetSchemasByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ? AND t.name = ?", domain.KindSchema.String(), name)
}

// GetTablesByName implements domain.PersistenceGateway.
func (g *SQLGateway) GetTablesByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ? AND t.name = ?", domain.KindTable.String(), name)
}

// GetColumnsByName implements domain.PersistenceGateway.
func (g *SQLGateway) GetColumnsByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ? AND t.name = ?", domain.KindColumn.String(), name)
}

// GetChildren implements domain.PersistenceGateway.
func (g *SQLGateway) GetChildren(ctx context.Context, parent domain.ID) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.parent_id = ?", int64(parent))
}

// LoadSchemas implements domain.PersistenceGateway.
func (g *SQLGateway) LoadSchemas(ctx context.Context) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ?", domain.KindSchema.String())
}

// LoadTables implements domain.PersistenceGateway.
func (g *SQLGateway) LoadTables(ctx context.Context) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ?", domain.KindTable.String())
}

// LoadColumns implements domain.PersistenceGateway.
func (g *SQLGateway) LoadColumns(ctx context.Context) ([]*domain.Target, error) {
	return g.queryTargets(ctx, "t.kind = ?", domain.KindColumn.String())
}

type targetRow struct {
	id          int64
	kind        string
	name        string
	description string
	parent      sql.NullInt64
}

// queryTargets loads the targets matching where (written against alias t)
// together with their locations, ordered by id.
func (g *SQLGateway) queryTargets(ctx context.Context, where string, args ...any) ([]*domain.Target, error) {
	tx, err := g.read.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, g.q(`SELECT t.id, t.kind, t.name, t.description, t.parent_id
		FROM mds_target t WHERE `+where+` ORDER BY t.id`), args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	var found []targetRow
	for rows.Next() {
		var r targetRow
		if err := rows.Scan(&r.id, &r.kind, &r.name, &r.description, &r.parent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan target: %w", err)
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}

	locs, err := g.loadLocations(ctx, tx, where, args...)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Target, 0, len(found))
	for _, r := range found {
		kind, err := domain.ParseTargetKind(r.kind)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", r.id, err)
		}
		out = append(out, domain.NewTarget(kind, domain.ID(r.id), domain.ID(r.parent.Int64),
			r.name, r.description, domain.LocationFromProperties(locs[domain.ID(r.id)])))
	}
	return out, nil
}
