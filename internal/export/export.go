// Package export streams search results to CSV, JSON, or NDJSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/star-labs/logscanner/internal/models"
	"github.com/star-labs/logscanner/internal/query"
)

// ErrInvalidExport marks export requests that fail validation.
var ErrInvalidExport = errors.New("invalid export request")

// Record limits.
const (
	DefaultMaxRecords = 10000
	MaxRecordsCap     = 100000
)

// Format identifies an export output format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat resolves a format name case-insensitively. Empty input
// defaults to CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "ndjson":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidExport, s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == FormatNDJSON {
		return "ndjson"
	}
	return string(f)
}

// defaultFields is the column set used when the request names none.
var defaultFields = []string{
	"timestamp", "level", "logger", "thread", "message", "lineNumber", "fileName",
}

// exportableFields is the closed set of field names an export may select.
var exportableFields = map[string]bool{
	"id": true, "jobId": true, "timestamp": true, "level": true,
	"message": true, "logger": true, "thread": true, "source": true,
	"lineNumber": true, "rawLine": true, "fileName": true,
	"stackTrace": true, "hostname": true, "application": true,
	"environment": true, "hasError": true, "hasStackTrace": true,
}

// Request describes one export run.
type Request struct {
	Query  *query.Request `json:"query"`
	Format Format         `json:"format"`

	Fields     []string `json:"fields,omitempty"`
	MaxRecords int      `json:"maxRecords,omitempty"`

	IncludeHeaders *bool  `json:"includeHeaders,omitempty"`
	Delimiter      string `json:"delimiter,omitempty"`
}

// Normalize fills defaults in place.
func (r *Request) Normalize() {
	if r.Format == "" {
		r.Format = FormatCSV
	}
	if len(r.Fields) == 0 {
		r.Fields = append([]string(nil), defaultFields...)
	}
	if r.MaxRecords <= 0 {
		r.MaxRecords = DefaultMaxRecords
	}
	if r.MaxRecords > MaxRecordsCap {
		r.MaxRecords = MaxRecordsCap
	}
	if r.Delimiter == "" {
		r.Delimiter = ","
	}
	if r.Query != nil {
		r.Query.Normalize()
	}
}

// Validate checks the request after Normalize.
func (r *Request) Validate() error {
	if r.Query == nil {
		return fmt.Errorf("%w: query is required", ErrInvalidExport)
	}
	if err := r.Query.Validate(); err != nil {
		return err
	}
	switch r.Format {
	case FormatCSV, FormatJSON, FormatNDJSON:
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidExport, r.Format)
	}
	if len([]rune(r.Delimiter)) != 1 {
		return fmt.Errorf("%w: delimiter must be a single character", ErrInvalidExport)
	}
	for _, f := range r.Fields {
		if !exportableFields[f] {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidExport, f)
		}
	}
	return nil
}

// WithHeaders reports whether CSV output carries a header row.
// Defaults to true.
func (r *Request) WithHeaders() bool {
	return r.IncludeHeaders == nil || *r.IncludeHeaders
}

// Exporter pages through search results and renders them.
type Exporter struct {
	executor *query.Executor
}

// NewExporter creates an exporter over a query executor.
func NewExporter(e *query.Executor) *Exporter {
	return &Exporter{executor: e}
}

// Export streams matching entries to w and returns the record count.
// Summary and highlight work is suppressed regardless of the embedded
// query's settings.
func (x *Exporter) Export(ctx context.Context, w io.Writer, req *Request) (int64, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return 0, err
	}

	fw, err := newFormatWriter(w, req)
	if err != nil {
		return 0, err
	}
	if err := fw.Begin(); err != nil {
		return 0, err
	}

	q := *req.Query
	noSummary := false
	q.IncludeSummary = &noSummary
	q.HighlightMatches = false
	q.Size = query.MaxPageSize

	max := int64(req.MaxRecords)
	var written int64
	for written < max {
		resp, err := x.executor.Search(ctx, &q)
		if err != nil {
			return written, err
		}
		for _, entry := range resp.Entries {
			if written >= max {
				break
			}
			if err := fw.Write(entry); err != nil {
				return written, fmt.Errorf("write record: %w", err)
			}
			written++
		}
		if len(resp.Entries) < q.Size {
			break
		}
		q.Page++
	}

	if err := fw.End(); err != nil {
		return written, err
	}
	return written, nil
}

// formatWriter renders entries in one output format.
type formatWriter interface {
	Begin() error
	Write(entry *models.LogEntry) error
	End() error
}

func newFormatWriter(w io.Writer, req *Request) (formatWriter, error) {
	switch req.Format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		cw.Comma = []rune(req.Delimiter)[0]
		return &csvFormat{w: cw, fields: req.Fields, headers: req.WithHeaders()}, nil
	case FormatJSON:
		return &jsonFormat{w: w, fields: req.Fields}, nil
	case FormatNDJSON:
		return &ndjsonFormat{enc: json.NewEncoder(w), fields: req.Fields}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidExport, req.Format)
	}
}

type csvFormat struct {
	w       *csv.Writer
	fields  []string
	headers bool
}

func (c *csvFormat) Begin() error {
	if !c.headers {
		return nil
	}
	return c.w.Write(c.fields)
}

func (c *csvFormat) Write(entry *models.LogEntry) error {
	row := make([]string, len(c.fields))
	for i, field := range c.fields {
		row[i] = fieldString(entry, field)
	}
	return c.w.Write(row)
}

func (c *csvFormat) End() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonFormat struct {
	w      io.Writer
	fields []string
	count  int
}

func (j *jsonFormat) Begin() error {
	_, err := io.WriteString(j.w, "[")
	return err
}

func (j *jsonFormat) Write(entry *models.LogEntry) error {
	prefix := "\n  "
	if j.count > 0 {
		prefix = ",\n  "
	}
	j.count++

	data, err := json.Marshal(fieldMap(entry, j.fields))
	if err != nil {
		return err
	}
	if _, err := io.WriteString(j.w, prefix); err != nil {
		return err
	}
	_, err = j.w.Write(data)
	return err
}

func (j *jsonFormat) End() error {
	if j.count == 0 {
		_, err := io.WriteString(j.w, "]\n")
		return err
	}
	_, err := io.WriteString(j.w, "\n]\n")
	return err
}

type ndjsonFormat struct {
	enc    *json.Encoder
	fields []string
}

func (n *ndjsonFormat) Begin() error { return nil }

func (n *ndjsonFormat) Write(entry *models.LogEntry) error {
	return n.enc.Encode(fieldMap(entry, n.fields))
}

func (n *ndjsonFormat) End() error { return nil }

// fieldMap projects the selected fields into a JSON-marshalable map.
func fieldMap(entry *models.LogEntry, fields []string) map[string]any {
	m := make(map[string]any, len(fields))
	for _, field := range fields {
		m[field] = fieldAny(entry, field)
	}
	return m
}

// fieldAny resolves a field keeping its natural JSON type.
func fieldAny(entry *models.LogEntry, field string) any {
	switch field {
	case "lineNumber":
		return entry.LineNumber
	case "timestamp":
		return entry.Timestamp
	case "hasError":
		return entry.HasError
	case "hasStackTrace":
		return entry.HasStackTrace
	default:
		return fieldString(entry, field)
	}
}

// fieldString resolves a field as text. Unknown fields and empty
// values render as the empty string.
func fieldString(entry *models.LogEntry, field string) string {
	switch field {
	case "id":
		return entry.ID
	case "jobId":
		return entry.JobID
	case "timestamp":
		return entry.Timestamp.String()
	case "level":
		return string(entry.Level)
	case "message":
		return entry.Message
	case "logger":
		return entry.Logger
	case "thread":
		return entry.Thread
	case "source":
		return entry.Source
	case "lineNumber":
		return strconv.FormatInt(entry.LineNumber, 10)
	case "rawLine":
		return entry.RawLine
	case "fileName":
		return entry.FileName
	case "stackTrace":
		return entry.StackTrace
	case "hostname":
		return entry.Hostname
	case "application":
		return entry.Application
	case "environment":
		return entry.Environment
	case "hasError":
		return strconv.FormatBool(entry.HasError)
	case "hasStackTrace":
		return strconv.FormatBool(entry.HasStackTrace)
	default:
		return ""
	}
}
