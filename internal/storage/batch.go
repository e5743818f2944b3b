package storage

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/star-labs/logscanner/internal/models"
)

// DefaultBatchSize is the flush threshold for the batch writer.
const DefaultBatchSize = 1000

// BatchStatistics tracks batch writer throughput with atomic counters.
type BatchStatistics struct {
	totalEntries     atomic.Int64
	savedEntries     atomic.Int64
	failedEntries    atomic.Int64
	batchesProcessed atomic.Int64
	totalSaveTimeMs  atomic.Int64
}

func (s *BatchStatistics) TotalEntries() int64     { return s.totalEntries.Load() }
func (s *BatchStatistics) SavedEntries() int64     { return s.savedEntries.Load() }
func (s *BatchStatistics) FailedEntries() int64    { return s.failedEntries.Load() }
func (s *BatchStatistics) BatchesProcessed() int64 { return s.batchesProcessed.Load() }

// SuccessRate returns the fraction of entries saved, in percent.
func (s *BatchStatistics) SuccessRate() float64 {
	total := s.totalEntries.Load()
	if total == 0 {
		return 100
	}
	return float64(s.savedEntries.Load()) / float64(total) * 100
}

// AverageSaveTimeMs returns the mean flush duration.
func (s *BatchStatistics) AverageSaveTimeMs() float64 {
	batches := s.batchesProcessed.Load()
	if batches == 0 {
		return 0
	}
	return float64(s.totalSaveTimeMs.Load()) / float64(batches)
}

// Inserter is the sink a batch writer flushes to.
type Inserter interface {
	InsertBatch(ctx context.Context, entries []*models.LogEntry) error
}

// BatchWriter accumulates entries and flushes them to the inserter when
// the batch size threshold is reached. One writer belongs to one job
// worker; it is not safe for concurrent use.
type BatchWriter struct {
	store           Inserter
	size            int
	continueOnError bool

	entries []*models.LogEntry
	stats   *BatchStatistics
	onFlush func(saved, failed int64)
}

// NewBatchWriter creates a writer flushing every size entries.
func NewBatchWriter(store Inserter, size int) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter{
		store:           store,
		size:            size,
		continueOnError: true,
		entries:         make([]*models.LogEntry, 0, size),
		stats:           &BatchStatistics{},
	}
}

// SetStrict makes a bulk insert failure fatal instead of retrying
// entries individually.
func (w *BatchWriter) SetStrict(strict bool) {
	w.continueOnError = !strict
}

// OnFlush registers a callback invoked after every flush with the
// saved and failed counts of that batch.
func (w *BatchWriter) OnFlush(fn func(saved, failed int64)) {
	w.onFlush = fn
}

// Stats exposes the accumulated counters.
func (w *BatchWriter) Stats() *BatchStatistics {
	return w.stats
}

// Pending returns the number of buffered entries.
func (w *BatchWriter) Pending() int {
	return len(w.entries)
}

// Add buffers one entry, flushing when the batch is full.
func (w *BatchWriter) Add(ctx context.Context, entry *models.LogEntry) error {
	w.entries = append(w.entries, entry)
	w.stats.totalEntries.Add(1)

	if len(w.entries) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered entries. On a bulk failure, entries are
// retried one at a time so a single bad entry doesn't sink the batch;
// in strict mode the bulk error is returned instead.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.entries) == 0 {
		return nil
	}

	batch := w.entries
	w.entries = make([]*models.LogEntry, 0, w.size)

	start := time.Now()
	err := w.store.InsertBatch(ctx, batch)
	w.stats.totalSaveTimeMs.Add(time.Since(start).Milliseconds())
	w.stats.batchesProcessed.Add(1)

	if err == nil {
		w.stats.savedEntries.Add(int64(len(batch)))
		w.notify(int64(len(batch)), 0)
		return nil
	}

	if !w.continueOnError {
		w.stats.failedEntries.Add(int64(len(batch)))
		w.notify(0, int64(len(batch)))
		return fmt.Errorf("insert batch of %d: %w", len(batch), err)
	}

	log.Printf("batch insert of %d entries failed, retrying individually: %v", len(batch), err)

	var saved, failed int64
	for _, entry := range batch {
		if err := w.store.InsertBatch(ctx, []*models.LogEntry{entry}); err != nil {
			failed++
			continue
		}
		saved++
	}

	w.stats.savedEntries.Add(saved)
	w.stats.failedEntries.Add(failed)
	w.notify(saved, failed)

	if failed > 0 {
		log.Printf("dropped %d entries after individual retry", failed)
	}
	return nil
}

func (w *BatchWriter) notify(saved, failed int64) {
	if w.onFlush != nil {
		w.onFlush(saved, failed)
	}
}
