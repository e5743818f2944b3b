// Package parser turns raw log lines into structured entries. It provides
// format parsers for plain text, JSON/NDJSON, and CSV/TSV files, plus a
// priority-ordered registry that picks the right parser for an upload.
package parser

import (
	"errors"

	"github.com/star-labs/logscanner/internal/models"
)

// Common errors returned by parsers and the registry.
var (
	ErrInvalidFormat = errors.New("invalid log format")
	ErrNoParser      = errors.New("no parser available for file")
)

// Format identifies a supported log file format.
type Format string

const (
	FormatText Format = "TEXT"
	FormatJSON Format = "JSON"
	FormatCSV  Format = "CSV"
)

// Parser is the contract every format parser implements. Parsers are
// stateful (multi-line assembly, CSV headers) and confined to a single
// job; Reset must be called before reuse across files.
type Parser interface {
	// CanParse reports whether this parser can likely handle the file,
	// judged from its name and a small content sample. It must not
	// mutate parser state.
	CanParse(fileName, sample string) bool

	// ParseLine parses one line and returns a tagged outcome.
	ParseLine(line string, lineNumber int64, ctx *Context) Outcome

	// Flush emits any buffered multi-line entry. Called once at EOF.
	// Returns nil when nothing is pending.
	Flush() *models.LogEntry

	// Reset clears all per-file state.
	Reset()

	Format() Format
	Priority() int
	MultiLine() bool
	Description() string
}

// OutcomeKind tags the result of parsing a single line.
type OutcomeKind int

const (
	// KindSuccess carries a complete entry ready to store.
	KindSuccess OutcomeKind = iota
	// KindBuffered means an entry started; the parser retains it while
	// awaiting continuation lines.
	KindBuffered
	// KindContinuation means the line was appended to the buffered entry.
	KindContinuation
	// KindSkipped covers whitespace-only lines, header rows, comments.
	KindSkipped
	// KindFailed marks a malformed line, counted as a failure.
	KindFailed
)

// Outcome is the tagged result of parsing one line.
type Outcome struct {
	Kind       OutcomeKind
	Entry      *models.LogEntry
	LineNumber int64
	Raw        string
	Reason     string
	Err        error
}

// Success wraps a complete entry.
func Success(entry *models.LogEntry) Outcome {
	return Outcome{Kind: KindSuccess, Entry: entry, LineNumber: entry.LineNumber}
}

// Buffered marks a line that opened a multi-line entry.
func Buffered(lineNumber int64, raw string) Outcome {
	return Outcome{Kind: KindBuffered, LineNumber: lineNumber, Raw: raw}
}

// Continuation marks a line appended to the buffered entry.
func Continuation(lineNumber int64, raw string) Outcome {
	return Outcome{Kind: KindContinuation, LineNumber: lineNumber, Raw: raw}
}

// Skipped marks a line that produced no entry.
func Skipped(lineNumber int64, reason string) Outcome {
	return Outcome{Kind: KindSkipped, LineNumber: lineNumber, Reason: reason}
}

// Failed marks a malformed line.
func Failed(lineNumber int64, raw string, err error) Outcome {
	return Outcome{Kind: KindFailed, LineNumber: lineNumber, Raw: raw, Err: err}
}

// DefaultMaxLineLength is the truncation threshold for a single line.
const DefaultMaxLineLength = 100000

// Context carries per-file parse configuration and progress counters.
// One Context belongs to one worker; no synchronization is needed.
type Context struct {
	JobID           string
	FileName        string
	TimestampFormat string
	StrictMode      bool
	MaxLineLength   int

	TotalLines       int64
	SuccessfulLines  int64
	FailedLines      int64
	SkippedLines     int64
	MultiLineEntries int64
}

// NewContext creates a parse context with defaults applied.
func NewContext(jobID, fileName string) *Context {
	return &Context{
		JobID:         jobID,
		FileName:      fileName,
		MaxLineLength: DefaultMaxLineLength,
	}
}

// ResetCounters zeroes the progress counters for a new file.
func (c *Context) ResetCounters() {
	c.TotalLines = 0
	c.SuccessfulLines = 0
	c.FailedLines = 0
	c.SkippedLines = 0
	c.MultiLineEntries = 0
}

// Record updates the context counters for one outcome.
func (c *Context) Record(o Outcome) {
	c.TotalLines++
	switch o.Kind {
	case KindSuccess:
		c.SuccessfulLines++
	case KindFailed:
		c.FailedLines++
	case KindSkipped:
		c.SkippedLines++
	case KindContinuation:
		c.MultiLineEntries++
	}
}
