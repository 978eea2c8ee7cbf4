// Package sqlitetest opens migrated databases for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-lifecycle/migrations"
	"github.com/garyjia/vendor-lifecycle/pkg/database"
)

// Open returns a fresh in-memory database with the embedded schema applied.
// The database is closed when the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()
	return open(t, database.Config{Path: database.MemoryPath})
}

// OpenFile returns a migrated database file in a temporary directory.
// Unlike Open it keeps conns connections, so transactions really contend.
func OpenFile(t testing.TB, conns int) *database.DB {
	t.Helper()
	return open(t, database.Config{
		Path:         filepath.Join(t.TempDir(), "vms.db"),
		MaxOpenConns: conns,
		MaxIdleConns: conns,
		BusyTimeout:  10 * time.Second,
	})
}

func open(t testing.TB, cfg database.Config) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))
	return db
}
