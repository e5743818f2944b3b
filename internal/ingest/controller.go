// Package ingest runs the upload-to-indexed pipeline: accepted files
// are queued, parsed on a worker pool, and written to the entry store
// in batches while job status is checkpointed for pollers.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/star-labs/logscanner/internal/models"
	"github.com/star-labs/logscanner/internal/parser"
	"github.com/star-labs/logscanner/internal/reader"
	"github.com/star-labs/logscanner/internal/storage"
)

// Job status messages surfaced to pollers.
const (
	msgQueued    = "Job queued for processing"
	msgRunning   = "Processing log file"
	msgCompleted = "Processing completed successfully"
)

// setupProgress is reported once the parser is selected and the file
// is counted; the parse pass then advances toward parseProgressCap.
const (
	setupProgress    = 5
	parseProgressCap = 95
)

// JobStore persists job status records.
type JobStore interface {
	Save(ctx context.Context, job *models.JobStatus) error
	Get(ctx context.Context, jobID string) (*models.JobStatus, error)
	Delete(ctx context.Context, jobID string) error
}

// entryDeleter is implemented by entry stores that support per-job
// deletion; the ClickHouse store does.
type entryDeleter interface {
	DeleteJob(ctx context.Context, jobID string) (int64, error)
}

// Recorder receives pipeline events for metrics. All methods must be
// safe for concurrent use.
type Recorder interface {
	JobQueued()
	JobFinished(state models.JobState, elapsed time.Duration)
	EntriesIndexed(n int64)
	EntriesDropped(n int64)
}

// Config tunes the ingestion pipeline.
type Config struct {
	TempDir       string
	BatchSize     int
	BufferSize    int
	MaxLineLength int

	// Strict fails a job on its first malformed line instead of
	// counting it and moving on. Insert errors become fatal too.
	Strict bool

	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int
}

// Upload is one accepted file handed to Submit.
type Upload struct {
	FileName        string
	FileSize        int64
	TimestampFormat string
	Content         io.Reader
}

// Controller owns the ingestion pipeline.
type Controller struct {
	jobs     JobStore
	entries  storage.Inserter
	registry *parser.Registry
	pool     *Pool
	cfg      Config
	recorder Recorder
}

// NewController wires the pipeline over the given stores and parser
// registry.
func NewController(jobs JobStore, entries storage.Inserter, registry *parser.Registry, cfg Config) *Controller {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Controller{
		jobs:     jobs,
		entries:  entries,
		registry: registry,
		pool:     NewPool(cfg.CoreWorkers, cfg.MaxWorkers, cfg.QueueCapacity),
		cfg:      cfg,
	}
}

// SetRecorder attaches a metrics recorder.
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// Submit spools the upload to disk, records the job as queued, and
// schedules it on the pool. The returned status is a snapshot.
func (c *Controller) Submit(ctx context.Context, upload Upload) (*models.JobStatus, error) {
	jobID := uuid.NewString()

	path, err := c.spool(upload.Content)
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	now := models.Now()
	job := &models.JobStatus{
		JobID:           jobID,
		Status:          models.JobQueued,
		Message:         msgQueued,
		FileName:        upload.FileName,
		FileSize:        upload.FileSize,
		TimestampFormat: upload.TimestampFormat,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.jobs.Save(ctx, job); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save job %s: %w", jobID, err)
	}

	if err := c.pool.Submit(func(ctx context.Context) {
		c.process(ctx, job.Clone(), path)
	}); err != nil {
		os.Remove(path)
		c.fail(ctx, job, err)
		return nil, fmt.Errorf("queue job %s: %w", jobID, err)
	}

	if c.recorder != nil {
		c.recorder.JobQueued()
	}
	return job.Clone(), nil
}

// Status returns the stored status of a job.
func (c *Controller) Status(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return c.jobs.Get(ctx, jobID)
}

// Delete removes a job and its indexed entries. Returns the number of
// entries removed.
func (c *Controller) Delete(ctx context.Context, jobID string) (int64, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status == models.JobProcessing || job.Status == models.JobQueued {
		return 0, fmt.Errorf("job %s is still %s", jobID, job.Status)
	}

	var removed int64
	if deleter, ok := c.entries.(entryDeleter); ok {
		if removed, err = deleter.DeleteJob(ctx, jobID); err != nil {
			return 0, fmt.Errorf("delete entries: %w", err)
		}
	}
	if err := c.jobs.Delete(ctx, jobID); err != nil {
		return removed, fmt.Errorf("delete job record: %w", err)
	}
	return removed, nil
}

// Close drains the pool.
func (c *Controller) Close() {
	c.pool.Close()
}

func (c *Controller) spool(content io.Reader) (string, error) {
	tmp, err := os.CreateTemp(c.cfg.TempDir, "logscanner-upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// process runs one job end to end on a pool worker.
func (c *Controller) process(ctx context.Context, job *models.JobStatus, path string) {
	defer os.Remove(path)
	start := time.Now()

	job.Status = models.JobProcessing
	job.Message = msgRunning
	c.update(ctx, job)

	sample, err := reader.ReadSample(path, parser.SampleLines, parser.SampleChars)
	if err != nil {
		c.fail(ctx, job, fmt.Errorf("sample file: %w", err))
		return
	}

	p, err := c.registry.ForFile(reader.TrimCompression(job.FileName), sample)
	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	total, err := reader.CountLines(ctx, path)
	if err != nil {
		c.fail(ctx, job, fmt.Errorf("count lines: %w", err))
		return
	}
	job.TotalLines = total
	job.Progress = setupProgress
	c.update(ctx, job)

	pctx := parser.NewContext(job.JobID, job.FileName)
	pctx.TimestampFormat = job.TimestampFormat
	pctx.StrictMode = c.cfg.Strict
	if c.cfg.MaxLineLength > 0 {
		pctx.MaxLineLength = c.cfg.MaxLineLength
	}

	writer := storage.NewBatchWriter(c.entries, c.cfg.BatchSize)
	writer.SetStrict(c.cfg.Strict)
	if c.recorder != nil {
		writer.OnFlush(func(saved, failed int64) {
			c.recorder.EntriesIndexed(saved)
			c.recorder.EntriesDropped(failed)
		})
	}

	r, err := reader.Open(path, reader.Options{
		BufferSize: c.cfg.BufferSize,
		Progress: func(n int64) {
			job.ProcessedLines = n
			job.Progress = progressFor(n, total)
			c.update(ctx, job)
		},
	})
	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	levelCounts := make(map[string]int64)
	stats, err := r.Lines(ctx, func(line string, n int64) error {
		outcome := p.ParseLine(line, n, pctx)
		pctx.Record(outcome)
		if outcome.Kind == parser.KindSuccess {
			c.finalize(outcome.Entry, job)
			levelCounts[string(outcome.Entry.Level)]++
			return writer.Add(ctx, outcome.Entry)
		}
		if outcome.Kind == parser.KindFailed && pctx.StrictMode {
			if outcome.Err != nil {
				return fmt.Errorf("line %d: %w", n, outcome.Err)
			}
			return fmt.Errorf("line %d: %s", n, outcome.Reason)
		}
		return nil
	})
	r.Close()
	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	if pending := p.Flush(); pending != nil {
		pctx.SuccessfulLines++
		c.finalize(pending, job)
		levelCounts[string(pending.Level)]++
		if err := writer.Add(ctx, pending); err != nil {
			c.fail(ctx, job, err)
			return
		}
	}
	if err := writer.Flush(ctx); err != nil {
		c.fail(ctx, job, err)
		return
	}

	completedAt := models.Now()
	job.Status = models.JobCompleted
	job.Progress = 100
	job.Message = msgCompleted
	job.Error = ""
	job.CompletedAt = &completedAt
	job.TotalLines = stats.TotalLines
	job.ProcessedLines = stats.TotalLines
	job.SuccessfulLines = pctx.SuccessfulLines
	job.FailedLines = pctx.FailedLines
	job.ProcessingTimeMs = stats.Elapsed.Milliseconds()
	job.LinesPerSecond = stats.LinesPerSecond
	if len(levelCounts) > 0 {
		job.LevelCounts = levelCounts
	}
	c.update(ctx, job)

	if c.recorder != nil {
		c.recorder.JobFinished(models.JobCompleted, time.Since(start))
	}
}

// finalize stamps store-level fields on an entry before batching.
func (c *Controller) finalize(entry *models.LogEntry, job *models.JobStatus) {
	entry.JobID = job.JobID
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.FileName == "" {
		entry.FileName = job.FileName
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = models.Now()
	}
	entry.IndexedAt = models.Now()
}

func (c *Controller) update(ctx context.Context, job *models.JobStatus) {
	job.UpdatedAt = models.Now()
	if err := c.jobs.Save(ctx, job); err != nil {
		log.Printf("save job %s: %v", job.JobID, err)
	}
}

func (c *Controller) fail(ctx context.Context, job *models.JobStatus, cause error) {
	completedAt := models.Now()
	job.Status = models.JobFailed
	job.Message = "Processing failed: " + cause.Error()
	job.Error = cause.Error()
	job.CompletedAt = &completedAt

	// The worker context may already be canceled; the terminal status
	// must still be persisted.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	c.update(ctx, job)

	log.Printf("job %s failed: %v", job.JobID, cause)
	if c.recorder != nil {
		c.recorder.JobFinished(models.JobFailed, 0)
	}
}

// progressFor maps parse position onto the 5..95 progress window.
func progressFor(processed, total int64) int {
	if total <= 0 {
		return setupProgress
	}
	p := setupProgress + int(processed*90/total)
	if p > parseProgressCap {
		p = parseProgressCap
	}
	return p
}
