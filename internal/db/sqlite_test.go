package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		mode   Mode
		txlock bool
	}{
		{"write", "/tmp/test.sqlite", ModeWrite, true},
		{"read", "/tmp/test.sqlite", ModeRead, false},
		{"file prefix", "file:/tmp/test.sqlite", ModeWrite, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN(tt.path, tt.mode)
			assert.True(t, strings.HasPrefix(dsn, "file:/tmp/test.sqlite?"), dsn)
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.txlock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), Mode("invalid"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", ModeWrite, 0)
	require.Error(t, err)
}

func TestOpenSQLite_Write(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_ReadDefaultMaxOpen(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), ModeRead, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")

	_, _, err = OpenSQLitePair("/nonexistent/dir/test.db", 4)
	require.Error(t, err)
}

func TestOpenSQLitePair_ConcurrentReads(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	for i := 0; i < 50; i++ {
		_, err := writeDB.Exec("INSERT INTO mds_target (id, kind, name) VALUES (?, 'schema', ?)", i, "s")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var count int
			errs[idx] = readDB.QueryRow("SELECT count(*) FROM mds_target").Scan(&count)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "reader %d failed", i)
	}
}

func TestMigrations_UpResetUp(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	tableCount := func() int {
		var n int
		require.NoError(t, writeDB.QueryRow(
			"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'mds_%'").Scan(&n))
		return n
	}
	assert.Equal(t, 9, tableCount())

	require.NoError(t, ResetMigrations(t.Context(), writeDB, DialectSQLite))
	assert.Equal(t, 0, tableCount())

	require.NoError(t, RunMigrations(writeDB, DialectSQLite))
	assert.Equal(t, 9, tableCount())

	// Running again is a no-op.
	require.NoError(t, RunMigrations(writeDB, DialectSQLite))
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT id FROM mds_target WHERE kind = ? AND name = ?"
	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t, "SELECT id FROM mds_target WHERE kind = $1 AND name = $2", DialectPostgres.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"sqlite": DialectSQLite, "SQLite3": DialectSQLite,
		"postgres": DialectPostgres, "postgresql": DialectPostgres, "pgx": DialectPostgres,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("oracle")
	require.Error(t, err)
}
