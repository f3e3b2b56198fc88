// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/db"
	"github.com/rs/zerolog"
)

// New returns a migrated libsql database in a temp dir, closed on cleanup.
func New(t testing.TB) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}
	conn, err := db.Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
