package storage

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version int
	name    string
	up      string
}

// jobMigrations holds the job store schema in version order.
var jobMigrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		up: `
			-- Job status table
			CREATE TABLE IF NOT EXISTS jobs (
				job_id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				progress INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				file_name TEXT NOT NULL DEFAULT '',
				file_size INTEGER NOT NULL DEFAULT 0,
				timestamp_format TEXT NOT NULL DEFAULT '',
				started_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				completed_at DATETIME,
				total_lines INTEGER NOT NULL DEFAULT 0,
				processed_lines INTEGER NOT NULL DEFAULT 0,
				successful_lines INTEGER NOT NULL DEFAULT 0,
				failed_lines INTEGER NOT NULL DEFAULT 0,
				processing_time_ms INTEGER NOT NULL DEFAULT 0,
				lines_per_second REAL NOT NULL DEFAULT 0,
				level_counts TEXT NOT NULL DEFAULT ''
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
			CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);
		`,
	},
}

// runMigrations applies pending migrations, each in its own transaction.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range jobMigrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d begin: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.up); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, time.Now(),
	); err != nil {
		return fmt.Errorf("migration %d record: %w", m.version, err)
	}
	return tx.Commit()
}
