package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func setupGoose(dialect Dialect) error {
	goose.SetBaseFS(EmbedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	return nil
}

// RunMigrations executes all pending goose migrations for the dialect.
func RunMigrations(db *sql.DB, dialect Dialect) error {
	return RunMigrationsContext(context.Background(), db, dialect)
}

// RunMigrationsContext is RunMigrations with a context.
func RunMigrationsContext(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dialect.migrationsDir()); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// ResetMigrations rolls back every applied migration, dropping the tables
// they created. A database without migrations is left untouched.
func ResetMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(dialect); err != nil {
		return err
	}
	if err := goose.ResetContext(ctx, db, dialect.migrationsDir()); err != nil {
		return fmt.Errorf("goose reset: %w", err)
	}
	return nil
}
