package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/star-labs/logscanner/internal/models"
)

// ErrJobNotFound is returned when a job ID is unknown or expired.
var ErrJobNotFound = errors.New("job not found")

// DefaultJobTTL is how long finished job records are kept.
const DefaultJobTTL = 24 * time.Hour

// JobStore persists job status records in SQLite.
type JobStore struct {
	path string
	db   *sql.DB
}

// NewJobStore creates a job store for the given database path.
func NewJobStore(path string) *JobStore {
	return &JobStore{path: path}
}

// Open initializes the database connection.
func (s *JobStore) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *JobStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *JobStore) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *JobStore) Migrate() error {
	return runMigrations(s.db)
}

// Save upserts a job status record.
func (s *JobStore) Save(ctx context.Context, job *models.JobStatus) error {
	var completedAt any
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.Time
	}

	levelCounts := ""
	if len(job.LevelCounts) > 0 {
		encoded, err := json.Marshal(job.LevelCounts)
		if err != nil {
			return fmt.Errorf("encode level counts: %w", err)
		}
		levelCounts = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			job_id, status, progress, message, error, file_name, file_size,
			timestamp_format, started_at, updated_at, completed_at,
			total_lines, processed_lines, successful_lines, failed_lines,
			processing_time_ms, lines_per_second, level_counts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			total_lines = excluded.total_lines,
			processed_lines = excluded.processed_lines,
			successful_lines = excluded.successful_lines,
			failed_lines = excluded.failed_lines,
			processing_time_ms = excluded.processing_time_ms,
			lines_per_second = excluded.lines_per_second,
			level_counts = excluded.level_counts
	`,
		job.JobID,
		string(job.Status),
		job.Progress,
		job.Message,
		job.Error,
		job.FileName,
		job.FileSize,
		job.TimestampFormat,
		job.StartedAt.Time,
		job.UpdatedAt.Time,
		completedAt,
		job.TotalLines,
		job.ProcessedLines,
		job.SuccessfulLines,
		job.FailedLines,
		job.ProcessingTimeMs,
		job.LinesPerSecond,
		levelCounts,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

// Get retrieves a job status record.
func (s *JobStore) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, status, progress, message, error, file_name, file_size,
		       timestamp_format, started_at, updated_at, completed_at,
		       total_lines, processed_lines, successful_lines, failed_lines,
		       processing_time_ms, lines_per_second, level_counts
		FROM jobs WHERE job_id = ?
	`, jobID)

	job := &models.JobStatus{}
	var status, levelCounts string
	var startedAt, updatedAt time.Time
	var completedAt sql.NullTime

	err := row.Scan(
		&job.JobID,
		&status,
		&job.Progress,
		&job.Message,
		&job.Error,
		&job.FileName,
		&job.FileSize,
		&job.TimestampFormat,
		&startedAt,
		&updatedAt,
		&completedAt,
		&job.TotalLines,
		&job.ProcessedLines,
		&job.SuccessfulLines,
		&job.FailedLines,
		&job.ProcessingTimeMs,
		&job.LinesPerSecond,
		&levelCounts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	if levelCounts != "" {
		if err := json.Unmarshal([]byte(levelCounts), &job.LevelCounts); err != nil {
			return nil, fmt.Errorf("decode level counts for job %s: %w", jobID, err)
		}
	}

	job.Status = models.JobState(status)
	job.StartedAt = models.NewTimestamp(startedAt)
	job.UpdatedAt = models.NewTimestamp(updatedAt)
	if completedAt.Valid {
		done := models.NewTimestamp(completedAt.Time)
		job.CompletedAt = &done
	}

	return job, nil
}

// Delete removes a job record.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE job_id = ?", jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List returns the most recently updated jobs.
func (s *JobStore) List(ctx context.Context, limit int) ([]*models.JobStatus, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id FROM jobs ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	jobs := make([]*models.JobStatus, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DeleteExpired removes terminal jobs not updated since the cutoff.
func (s *JobStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN (?, ?) AND updated_at < ?
	`, string(models.JobCompleted), string(models.JobFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// StartSweeper periodically removes expired job records until the
// context is cancelled.
func (s *JobStore) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.DeleteExpired(ctx, time.Now().Add(-ttl))
				if err != nil {
					log.Printf("job sweeper error: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("job sweeper removed %d expired jobs", n)
				}
			}
		}
	}()
}
