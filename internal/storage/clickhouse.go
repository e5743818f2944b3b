// Package storage persists parsed log entries in ClickHouse and job
// metadata in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/star-labs/logscanner/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for log entry retention.
	RetentionDays int
}

// ClickHouseStorage owns the log_entries table.
type ClickHouseStorage struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseStorage creates a ClickHouse storage with defaults applied.
func NewClickHouseStorage(config *ClickHouseConfig) *ClickHouseStorage {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseStorage{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStorage) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection for query execution and health checks.
func (s *ClickHouseStorage) DB() *sql.DB {
	return s.db
}

// Ping checks the connection health.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the log_entries table if it doesn't exist.
func (s *ClickHouseStorage) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS log_entries (
			id UUID DEFAULT generateUUIDv4(),
			job_id String,
			line_number Int64,
			timestamp DateTime64(3),
			indexed_at DateTime64(3),
			level LowCardinality(String),
			message String,
			raw_line String,
			logger String,
			thread String,
			source String,
			file_name String,
			hostname String,
			application LowCardinality(String),
			environment LowCardinality(String),
			stack_trace String,
			has_error UInt8 DEFAULT 0,
			has_stack_trace UInt8 DEFAULT 0,
			metadata String DEFAULT '{}',
			tags Array(String) DEFAULT [],
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (job_id, line_number)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create log_entries table: %w", err)
	}

	// Indexes are idempotent in ClickHouse.
	indexes := []string{
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_message message TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_raw_line raw_line TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_stack_trace stack_trace TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_logger logger TYPE bloom_filter(0.01) GRANULARITY 4",
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			// Index creation may not be supported in all ClickHouse versions.
			log.Printf("warning: failed to create index: %v", err)
		}
	}

	return nil
}

// InsertBatch inserts log entries in a single transaction.
func (s *ClickHouseStorage) InsertBatch(ctx context.Context, entries []*models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries (
			id, job_id, line_number, timestamp, indexed_at, level, message,
			raw_line, logger, thread, source, file_name, hostname,
			application, environment, stack_trace, has_error,
			has_stack_trace, metadata, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}

		metadataJSON := "{}"
		if len(entry.Metadata) > 0 {
			data, err := json.Marshal(entry.Metadata)
			if err == nil {
				metadataJSON = string(data)
			}
		}

		indexedAt := entry.IndexedAt.Time
		if entry.IndexedAt.IsZero() {
			indexedAt = time.Now()
		}

		tags := entry.Tags
		if tags == nil {
			tags = []string{}
		}

		_, err := stmt.ExecContext(ctx,
			id,
			entry.JobID,
			entry.LineNumber,
			entry.Timestamp.Time,
			indexedAt,
			string(entry.Level),
			entry.Message,
			entry.RawLine,
			entry.Logger,
			entry.Thread,
			entry.Source,
			entry.FileName,
			entry.Hostname,
			entry.Application,
			entry.Environment,
			entry.StackTrace,
			entry.HasError,
			entry.HasStackTrace,
			metadataJSON,
			tags,
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// DeleteJob removes all entries for a job. ClickHouse runs the delete
// asynchronously.
func (s *ClickHouseStorage) DeleteJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT count() FROM log_entries WHERE job_id = ?", jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ALTER TABLE log_entries DELETE WHERE job_id = ?", jobID); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	return count, nil
}

// DeleteBefore removes entries older than the specified time, ahead of
// the table TTL.
func (s *ClickHouseStorage) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT count() FROM log_entries WHERE timestamp < ?", before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ALTER TABLE log_entries DELETE WHERE timestamp < ?", before); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	return count, nil
}
