package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the local durable store: the pending-update queue, the job snapshot
// cache and the service-worker asset cache. All operations are local-only and
// never block on connectivity.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Local store initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_updates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id INTEGER NOT NULL,
            status TEXT,
            notes TEXT,
            timestamp DATETIME NOT NULL,
            synced BOOLEAN NOT NULL DEFAULT 0,
            sync_state TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            synced_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS pending_photos (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            update_id INTEGER NOT NULL REFERENCES pending_updates(id) ON DELETE CASCADE,
            seq INTEGER NOT NULL,
            filename TEXT NOT NULL,
            content_type TEXT NOT NULL,
            data BLOB NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cached_jobs (
            id INTEGER PRIMARY KEY,
            job_number TEXT NOT NULL,
            status TEXT NOT NULL,
            description TEXT,
            customer_name TEXT,
            due_date DATETIME,
            fetched_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cache_assets (
            version TEXT NOT NULL,
            path TEXT NOT NULL,
            content_type TEXT NOT NULL,
            data BLOB NOT NULL,
            PRIMARY KEY (version, path)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_pending_updates_state ON pending_updates(sync_state)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_updates_job_id ON pending_updates(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_photos_update_id ON pending_photos(update_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_jobs_number ON cached_jobs(job_number)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_jobs_status ON cached_jobs(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// quotaExceeded reports whether err is sqlite running out of space.
func quotaExceeded(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrFull
}
