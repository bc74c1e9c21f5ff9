package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"mdstore/internal/constraints"
	internaldb "mdstore/internal/db"
	"mdstore/internal/domain"
)

// Compile-time check.
var _ domain.PersistenceGateway = (*SQLGateway)(nil)

// catalogTables lists every table the migrations create.
var catalogTables = []string{
	"mds_config",
	"mds_target",
	"mds_location_type",
	"mds_location",
	"mds_location_property",
	"mds_constraint_collection",
	"mds_scope",
	"mds_constraint",
	"mds_constraint_target",
}

// SQLGateway persists the catalog in SQL tables. Mutations go through the
// write pool inside a transaction each; lookups use the read pool. Writes
// are durable when a call returns, so Flush has nothing to do.
type SQLGateway struct {
	write       *sql.DB
	read        *sql.DB
	dialect     internaldb.Dialect
	serializers *constraints.Registry
	logger      *slog.Logger
	owned       bool
}

// NewSQLGateway creates a gateway over existing pools. readDB may be nil to
// use writeDB for everything. The caller keeps ownership of the pools.
func NewSQLGateway(writeDB, readDB *sql.DB, dialect internaldb.Dialect, logger *slog.Logger) *SQLGateway {
	if readDB == nil {
		readDB = writeDB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLGateway{
		write:       writeDB,
		read:        readDB,
		dialect:     dialect,
		serializers: constraints.NewRegistry(),
		logger:      logger,
	}
}

// OpenSQLiteGateway opens a read/write pool pair on the SQLite file at path.
// The gateway closes the pools on Close.
func OpenSQLiteGateway(path string, logger *slog.Logger) (*SQLGateway, error) {
	writeDB, readDB, err := internaldb.OpenSQLitePair(path, 0)
	if err != nil {
		return nil, err
	}
	g := NewSQLGateway(writeDB, readDB, internaldb.DialectSQLite, logger)
	g.owned = true
	return g, nil
}

// OpenPostgresGateway connects to PostgreSQL. The gateway closes the pool on
// Close.
func OpenPostgresGateway(dsn string, logger *slog.Logger) (*SQLGateway, error) {
	pool, err := internaldb.OpenPostgres(dsn, 0)
	if err != nil {
		return nil, err
	}
	g := NewSQLGateway(pool, pool, internaldb.DialectPostgres, logger)
	g.owned = true
	return g, nil
}

// Dialect returns the SQL dialect in use.
func (g *SQLGateway) Dialect() internaldb.Dialect { return g.dialect }

func (g *SQLGateway) q(query string) string { return g.dialect.Rebind(query) }

// Initialize drops whatever a previous run left behind and creates every
// table from scratch.
func (g *SQLGateway) Initialize(ctx context.Context) error {
	if err := internaldb.ResetMigrations(ctx, g.write, g.dialect); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := internaldb.RunMigrationsContext(ctx, g.write, g.dialect); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	g.logger.Info("catalog tables created", "dialect", g.dialect)
	return nil
}

// DropIfExists drops every catalog table that exists.
func (g *SQLGateway) DropIfExists(ctx context.Context) error {
	if err := internaldb.ResetMigrations(ctx, g.write, g.dialect); err != nil {
		return fmt.Errorf("drop catalog tables: %w", err)
	}
	return nil
}

// TablesExist reports whether all catalog tables are present.
func (g *SQLGateway) TablesExist(ctx context.Context) (bool, error) {
	var query string
	switch g.dialect {
	case internaldb.DialectPostgres:
		query = `SELECT count(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name IN (` + placeholders(len(catalogTables)) + `)`
	default:
		query = `SELECT count(*) FROM sqlite_master
			WHERE type = 'table' AND name IN (` + placeholders(len(catalogTables)) + `)`
	}
	args := make([]any, len(catalogTables))
	for i, name := range catalogTables {
		args[i] = name
	}
	var n int
	if err := g.read.QueryRowContext(ctx, g.q(query), args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check catalog tables: %w", err)
	}
	return n == len(catalogTables), nil
}

// RegisterConstraintSerializer makes a constraint kind storable.
func (g *SQLGateway) RegisterConstraintSerializer(s domain.ConstraintSerializer) {
	g.serializers.RegisterConstraintSerializer(s)
}

// SaveConfiguration upserts every entry of cfg.
func (g *SQLGateway) SaveConfiguration(ctx context.Context, cfg map[string]string) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		for k, v := range cfg {
			if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_config (name, value) VALUES (?, ?)
				ON CONFLICT (name) DO UPDATE SET value = excluded.value`), k, v); err != nil {
				return fmt.Errorf("save configuration %q: %w", k, err)
			}
		}
		return nil
	})
}

// LoadConfiguration returns every stored configuration entry.
func (g *SQLGateway) LoadConfiguration(ctx context.Context) (map[string]string, error) {
	rows, err := g.read.QueryContext(ctx, `SELECT name, value FROM mds_config`)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

// Flush is a no-op: every mutation commits before returning.
func (g *SQLGateway) Flush(_ context.Context) error { return nil }

// Close releases the pools when the gateway opened them itself.
func (g *SQLGateway) Close() error {
	if !g.owned {
		return nil
	}
	var errs []error
	if g.read != g.write {
		errs = append(errs, g.read.Close())
	}
	errs = append(errs, g.write.Close())
	return errors.Join(errs...)
}

// inTx runs fn in a write transaction, rolling back when fn fails.
func (g *SQLGateway) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
