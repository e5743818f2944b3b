// Package query validates search requests, compiles them to ClickHouse
// SQL, and executes them against the entry store.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/star-labs/logscanner/internal/models"
)

// ErrInvalidQuery marks request validation failures. The API layer maps
// it to a 400 response.
var ErrInvalidQuery = errors.New("invalid query")

// Pagination bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// sortColumns is the allowlist of sortable fields mapped to columns.
var sortColumns = map[string]string{
	"timestamp":   "timestamp",
	"lineNumber":  "line_number",
	"level":       "level",
	"logger":      "logger",
	"thread":      "thread",
	"source":      "source",
	"hostname":    "hostname",
	"application": "application",
	"indexedAt":   "indexed_at",
}

// keywordColumns are the low-cardinality fields eligible for the
// unique-values aggregation and exact-match filtering.
var keywordColumns = map[string]string{
	"jobId":       "job_id",
	"level":       "level",
	"logger":      "logger",
	"thread":      "thread",
	"source":      "source",
	"fileName":    "file_name",
	"hostname":    "hostname",
	"application": "application",
	"environment": "environment",
}

// searchColumns are the fields searchText may run over.
var searchColumns = map[string]string{
	"message":     "message",
	"rawLine":     "raw_line",
	"stackTrace":  "stack_trace",
	"logger":      "logger",
	"thread":      "thread",
	"source":      "source",
	"fileName":    "file_name",
	"hostname":    "hostname",
	"application": "application",
	"environment": "environment",
}

// defaultSearchFields are used when a request omits searchFields.
var defaultSearchFields = []string{"message", "rawLine", "stackTrace"}

// timelineIntervals maps the supported histogram intervals to their
// ClickHouse INTERVAL clauses.
var timelineIntervals = map[string]string{
	"1s":  "INTERVAL 1 SECOND",
	"1m":  "INTERVAL 1 MINUTE",
	"5m":  "INTERVAL 5 MINUTE",
	"15m": "INTERVAL 15 MINUTE",
	"30m": "INTERVAL 30 MINUTE",
	"1h":  "INTERVAL 1 HOUR",
	"1d":  "INTERVAL 1 DAY",
	"1w":  "INTERVAL 1 WEEK",
	"1M":  "INTERVAL 1 MONTH",
}

// Request is a structured search over one job's entries. All filters
// compose with AND semantics; searchText tokens must all match at
// least one search field each.
type Request struct {
	JobID string `json:"jobId"`

	SearchText   string   `json:"searchText,omitempty"`
	SearchFields []string `json:"searchFields,omitempty"`

	Levels      []string `json:"levels,omitempty"`
	FileName    string   `json:"fileName,omitempty"`
	Logger      string   `json:"logger,omitempty"`
	Thread      string   `json:"thread,omitempty"`
	Source      string   `json:"source,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	Application string   `json:"application,omitempty"`
	Environment string   `json:"environment,omitempty"`

	HasError      *bool    `json:"hasError,omitempty"`
	HasStackTrace *bool    `json:"hasStackTrace,omitempty"`
	Tags          []string `json:"tags,omitempty"`

	StartDate *models.Timestamp `json:"startDate,omitempty"`
	EndDate   *models.Timestamp `json:"endDate,omitempty"`

	MinLineNumber *int64 `json:"minLineNumber,omitempty"`
	MaxLineNumber *int64 `json:"maxLineNumber,omitempty"`

	SortBy        string `json:"sortBy,omitempty"`
	SortDirection string `json:"sortDirection,omitempty"`

	Page int `json:"page"`
	Size int `json:"size"`

	IncludeFields []string `json:"includeFields,omitempty"`
	ExcludeFields []string `json:"excludeFields,omitempty"`

	IncludeSummary   *bool `json:"includeSummary,omitempty"`
	HighlightMatches bool  `json:"highlightMatches,omitempty"`
}

// Normalize applies request defaults in place.
func (r *Request) Normalize() {
	if r.Size == 0 {
		r.Size = DefaultPageSize
	}
	if r.SortBy == "" {
		r.SortBy = "timestamp"
	}
	if r.SortDirection == "" {
		r.SortDirection = "desc"
	}
	if len(r.SearchFields) == 0 {
		r.SearchFields = defaultSearchFields
	}
	for i, l := range r.Levels {
		r.Levels[i] = strings.ToUpper(strings.TrimSpace(l))
	}
}

// Validate checks the request bounds and field allowlists. Callers
// should Normalize first.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("%w: jobId is required", ErrInvalidQuery)
	}
	if r.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrInvalidQuery)
	}
	if r.Size < 1 || r.Size > MaxPageSize {
		return fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidQuery, MaxPageSize)
	}
	if _, ok := sortColumns[r.SortBy]; !ok {
		return fmt.Errorf("%w: unsupported sort field %q", ErrInvalidQuery, r.SortBy)
	}
	switch strings.ToLower(r.SortDirection) {
	case "asc", "desc":
	default:
		return fmt.Errorf("%w: sort direction must be asc or desc", ErrInvalidQuery)
	}
	if r.StartDate != nil && r.EndDate != nil && r.StartDate.After(r.EndDate.Time) {
		return fmt.Errorf("%w: startDate is after endDate", ErrInvalidQuery)
	}
	if r.MinLineNumber != nil && r.MaxLineNumber != nil && *r.MinLineNumber > *r.MaxLineNumber {
		return fmt.Errorf("%w: minLineNumber is greater than maxLineNumber", ErrInvalidQuery)
	}
	for _, f := range r.SearchFields {
		if _, ok := searchColumns[f]; !ok {
			return fmt.Errorf("%w: unsupported search field %q", ErrInvalidQuery, f)
		}
	}
	return nil
}

// WithSummary reports whether a summary should be attached; the
// default is true.
func (r *Request) WithSummary() bool {
	return r.IncludeSummary == nil || *r.IncludeSummary
}

// KeywordColumn resolves a keyword field name to its column, for the
// unique-values aggregation.
func KeywordColumn(field string) (string, error) {
	col, ok := keywordColumns[field]
	if !ok {
		return "", fmt.Errorf("%w: field %q does not support unique values", ErrInvalidQuery, field)
	}
	return col, nil
}

// IntervalClause resolves a timeline interval to its ClickHouse clause.
func IntervalClause(interval string) (string, error) {
	clause, ok := timelineIntervals[interval]
	if !ok {
		return "", fmt.Errorf("%w: unsupported timeline interval %q", ErrInvalidQuery, interval)
	}
	return clause, nil
}
