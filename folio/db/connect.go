package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// Open connects to the embedded libsql database described by cfg, applies
// connection settings and migrates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, error) {
	db, err := ConnectToDB(cfg.DSN, logger)
	if err != nil {
		return nil, err
	}

	if err := configurePragmas(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	configurePool(db, cfg, logger)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ConnectToDB opens an embedded libsql database at path, creating its directory
// when needed, and checks connectivity.
func ConnectToDB(path string, logger zerolog.Logger) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("Database not found, creating a new one")
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	var result int
	if err := db.QueryRow("SELECT 1").Scan(&result); err != nil {
		db.Close()
		return nil, fmt.Errorf("basic connectivity test failed: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Connected to embedded libsql")
	return db, nil
}

func configurePragmas(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}

	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", fmt.Sprintf("%d", busy)},
		{"foreign_keys", "ON"},
	}

	for _, p := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.ExecContext(ctx, query); err != nil {
			// Some PRAGMA statements return rows
			if !strings.Contains(err.Error(), "returned rows") {
				return fmt.Errorf("failed to set %s: %w", p.name, err)
			}
			rows, err := db.QueryContext(ctx, query)
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", p.name, err)
			}
			rows.Close()
		}
	}

	return nil
}

func configurePool(db *sql.DB, cfg config.DatabaseConfig, logger zerolog.Logger) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = maxOpen
	}
	idleTime := time.Duration(cfg.ConnMaxIdleSec) * time.Second
	if idleTime <= 0 {
		idleTime = 5 * time.Minute
	}
	lifeTime := time.Duration(cfg.ConnMaxLifeSec) * time.Second
	if lifeTime <= 0 {
		lifeTime = time.Hour
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(idleTime)
	db.SetConnMaxLifetime(lifeTime)

	logger.Debug().
		Int("max_open", maxOpen).
		Int("max_idle", maxIdle).
		Dur("max_idle_time", idleTime).
		Dur("max_lifetime", lifeTime).
		Msg("Connection pool configured")
}
