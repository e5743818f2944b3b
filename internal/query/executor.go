package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/star-labs/logscanner/internal/models"
)

// DefaultQueryTimeout bounds a single store round trip.
const DefaultQueryTimeout = 30 * time.Second

// DefaultUniqueValuesLimit caps the unique-values aggregation.
const DefaultUniqueValuesLimit = 100

const topValuesLimit = 10

// Executor runs compiled queries against ClickHouse.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewExecutor creates an executor over the entry store connection.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db, timeout: DefaultQueryTimeout}
}

// SetTimeout overrides the per-query timeout.
func (e *Executor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

func (e *Executor) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// Search validates, compiles, and executes a request, returning one
// page of entries with pagination info and optional summary and
// highlights.
func (e *Executor) Search(ctx context.Context, req *Request) (*Response, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()

	total, err := e.count(ctx, req)
	if err != nil {
		return nil, err
	}

	entries, err := e.fetchEntries(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Entries:    entries,
		Pagination: paginate(req.Page, req.Size, total, len(entries)),
	}

	if req.HighlightMatches && req.SearchText != "" {
		resp.Highlights = buildHighlights(entries, req.SearchText, req.SearchFields)
	}

	if req.WithSummary() {
		summary, err := e.summarize(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Summary = summary
	}

	applyProjection(entries, req.IncludeFields, req.ExcludeFields)

	resp.QueryTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (e *Executor) count(ctx context.Context, req *Request) (int64, error) {
	sqlText, args := buildCount(req)
	var total int64
	if err := e.db.QueryRowContext(ctx, sqlText, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return total, nil
}

func (e *Executor) fetchEntries(ctx context.Context, req *Request) ([]*models.LogEntry, error) {
	sqlText, args := buildSearch(req)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.LogEntry, 0, req.Size)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

// scanEntry reads one row in entryColumns order.
func scanEntry(rows *sql.Rows) (*models.LogEntry, error) {
	entry := &models.LogEntry{}
	var timestamp, indexedAt time.Time
	var level, metadataJSON string
	var hasError, hasStackTrace uint8
	var tags []string

	err := rows.Scan(
		&entry.ID,
		&entry.JobID,
		&entry.LineNumber,
		&timestamp,
		&indexedAt,
		&level,
		&entry.Message,
		&entry.RawLine,
		&entry.Logger,
		&entry.Thread,
		&entry.Source,
		&entry.FileName,
		&entry.Hostname,
		&entry.Application,
		&entry.Environment,
		&entry.StackTrace,
		&hasError,
		&hasStackTrace,
		&metadataJSON,
		&tags,
	)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	entry.Timestamp = models.NewTimestamp(timestamp)
	entry.IndexedAt = models.NewTimestamp(indexedAt)
	entry.Level = models.LogLevel(level)
	entry.HasError = hasError != 0
	entry.HasStackTrace = hasStackTrace != 0
	if len(tags) > 0 {
		entry.Tags = tags
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err == nil {
			entry.Metadata = meta
		}
	}
	return entry, nil
}

func paginate(page, size int, total int64, fetched int) PaginationInfo {
	totalPages := total / int64(size)
	if total%int64(size) != 0 {
		totalPages++
	}

	info := PaginationInfo{
		CurrentPage:   page,
		PageSize:      size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       int64(page) < totalPages-1,
		HasPrevious:   page > 0,
	}
	if fetched > 0 {
		info.FirstElement = int64(page) * int64(size)
		info.LastElement = info.FirstElement + int64(fetched) - 1
	}
	return info
}

// summarize runs the aggregate queries backing a filter summary.
func (e *Executor) summarize(ctx context.Context, req *Request) (*FilterSummary, error) {
	summary := &FilterSummary{LevelCounts: make(map[string]int64)}

	sqlText, args := buildLevelCounts(req)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("level counts: %w", err)
	}
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		summary.LevelCounts[level] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows: %w", err)
	}
	rows.Close()

	sqlText, args = buildSummaryTotals(req)
	var earliest, latest time.Time
	err = e.db.QueryRowContext(ctx, sqlText, args...).Scan(
		&summary.TotalCount,
		&summary.ErrorCount,
		&summary.StackTraceCount,
		&earliest,
		&latest,
		&summary.UniqueLoggerCount,
		&summary.UniqueThreadCount,
		&summary.UniqueSourceCount,
	)
	if err != nil {
		return nil, fmt.Errorf("summary totals: %w", err)
	}
	if summary.TotalCount > 0 {
		e1 := models.NewTimestamp(earliest)
		e2 := models.NewTimestamp(latest)
		summary.EarliestTimestamp = &e1
		summary.LatestTimestamp = &e2
	}

	for _, top := range []struct {
		column string
		dest   *[]ValueCount
	}{
		{"logger", &summary.TopLoggers},
		{"thread", &summary.TopThreads},
		{"source", &summary.TopSources},
	} {
		values, err := e.topValues(ctx, req, top.column)
		if err != nil {
			return nil, err
		}
		*top.dest = values
	}

	return summary, nil
}

func (e *Executor) topValues(ctx context.Context, req *Request, column string) ([]ValueCount, error) {
	sqlText, args := buildTopValues(req, column, topValuesLimit)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	values := make([]ValueCount, 0, topValuesLimit)
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		values = append(values, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return values, nil
}

// Summary runs the filter summary for a request without fetching a
// page of entries.
func (e *Executor) Summary(ctx context.Context, req *Request) (*FilterSummary, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	return e.summarize(ctx, req)
}

// LevelDistribution returns the per-level entry counts of a job.
func (e *Executor) LevelDistribution(ctx context.Context, jobID string) (map[string]int64, error) {
	req := &Request{JobID: jobID}
	req.Normalize()

	ctx, cancel := e.queryCtx(ctx)
	defer cancel()

	sqlText, args := buildLevelCounts(req)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("level distribution: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		counts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return counts, nil
}

// Timeline returns the date histogram of a job at the given interval.
func (e *Executor) Timeline(ctx context.Context, jobID, interval string) (*TimelineData, error) {
	clause, err := IntervalClause(interval)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.queryCtx(ctx)
	defer cancel()

	sqlText, args := buildTimeline(jobID, clause)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	data := &TimelineData{Interval: interval, Buckets: []TimelineBucket{}}
	for rows.Next() {
		var bucket time.Time
		var b TimelineBucket
		if err := rows.Scan(&bucket, &b.Count, &b.ErrorCount, &b.WarnCount); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.Timestamp = models.NewTimestamp(bucket)
		data.Buckets = append(data.Buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return data, nil
}

// UniqueValues returns the distinct values of a keyword field ordered
// by descending count.
func (e *Executor) UniqueValues(ctx context.Context, jobID, field string, limit int) ([]string, error) {
	column, err := KeywordColumn(field)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultUniqueValuesLimit
	}

	ctx, cancel := e.queryCtx(ctx)
	defer cancel()

	sqlText, args := buildUniqueValues(jobID, column, limit)
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("unique values: %w", err)
	}
	defer rows.Close()

	values := make([]string, 0, limit)
	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return values, nil
}

// Fields returns the level constants plus the unique values of the
// common keyword fields, for search form population.
func (e *Executor) Fields(ctx context.Context, jobID string) (map[string][]string, error) {
	fields := map[string][]string{
		"levels": levelNames(),
	}

	for _, field := range []string{"logger", "thread", "source", "hostname", "application"} {
		values, err := e.UniqueValues(ctx, jobID, field, DefaultUniqueValuesLimit)
		if err != nil {
			return nil, err
		}
		fields[field+"s"] = values
	}
	return fields, nil
}

func levelNames() []string {
	names := make([]string, len(models.Levels))
	for i, l := range models.Levels {
		names[i] = string(l)
	}
	return names
}

// applyProjection clears fields outside the include list, then the
// named exclude fields. Identity fields (id, jobId, lineNumber) always
// survive.
func applyProjection(entries []*models.LogEntry, include, exclude []string) {
	if len(include) == 0 && len(exclude) == 0 {
		return
	}

	included := make(map[string]bool, len(include))
	for _, f := range include {
		included[f] = true
	}
	excluded := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		excluded[f] = true
	}

	for _, entry := range entries {
		for _, field := range projectableFields {
			if len(include) > 0 && !included[field] {
				clearField(entry, field)
				continue
			}
			if excluded[field] {
				clearField(entry, field)
			}
		}
	}
}

var projectableFields = []string{
	"timestamp", "indexedAt", "level", "message", "rawLine", "logger",
	"thread", "source", "fileName", "hostname", "application",
	"environment", "stackTrace", "metadata", "tags",
}

func clearField(entry *models.LogEntry, field string) {
	switch field {
	case "timestamp":
		entry.Timestamp = models.Timestamp{}
	case "indexedAt":
		entry.IndexedAt = models.Timestamp{}
	case "level":
		entry.Level = ""
	case "message":
		entry.Message = ""
	case "rawLine":
		entry.RawLine = ""
	case "logger":
		entry.Logger = ""
	case "thread":
		entry.Thread = ""
	case "source":
		entry.Source = ""
	case "fileName":
		entry.FileName = ""
	case "hostname":
		entry.Hostname = ""
	case "application":
		entry.Application = ""
	case "environment":
		entry.Environment = ""
	case "stackTrace":
		entry.StackTrace = ""
	case "metadata":
		entry.Metadata = nil
	case "tags":
		entry.Tags = nil
	}
}
