// Package models contains the core data structures for logscanner.
package models

import (
	"encoding/json"
	"strings"
)

// LogLevel is a normalized severity level.
type LogLevel string

const (
	LevelTrace LogLevel = "TRACE"
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Levels lists the normalized levels in ascending severity.
var Levels = []LogLevel{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError}

// NormalizeLevel maps raw severity strings onto the five normalized levels.
// Unknown values pass through uppercased; empty input maps to INFO.
func NormalizeLevel(s string) LogLevel {
	if s == "" {
		return LevelInfo
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING", "WARN":
		return LevelWarn
	case "SEVERE", "FATAL", "CRITICAL", "ALERT", "EMERGENCY":
		return LevelError
	case "FINE", "FINER", "FINEST", "VERBOSE", "DBG":
		return LevelDebug
	case "CONFIG", "NOTICE", "INFORMATIONAL":
		return LevelInfo
	case "TRC":
		return LevelTrace
	default:
		return LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	}
}

// LogEntry is the canonical indexed document: one structured record per
// source line, or per multi-line event.
type LogEntry struct {
	ID         string    `json:"id"`
	JobID      string    `json:"jobId"`
	LineNumber int64     `json:"lineNumber"`
	Timestamp  Timestamp `json:"timestamp"`
	IndexedAt  Timestamp `json:"indexedAt"`

	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	RawLine string   `json:"rawLine,omitempty"`

	Logger      string `json:"logger,omitempty"`
	Thread      string `json:"thread,omitempty"`
	Source      string `json:"source,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Application string `json:"application,omitempty"`
	Environment string `json:"environment,omitempty"`

	StackTrace    string `json:"stackTrace,omitempty"`
	HasError      bool   `json:"hasError"`
	HasStackTrace bool   `json:"hasStackTrace"`

	// Metadata holds parser-extracted fields not covered by the schema.
	// Values are scalars; objects and arrays are stored in textual form.
	Metadata map[string]any `json:"metadata,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// SetLevel assigns a normalized level and keeps HasError consistent.
func (e *LogEntry) SetLevel(level LogLevel) {
	e.Level = level
	e.HasError = level == LevelError
}

// SetStackTrace assigns the stack trace and keeps HasStackTrace consistent.
func (e *LogEntry) SetStackTrace(trace string) {
	e.StackTrace = trace
	e.HasStackTrace = trace != ""
}

// SetMeta sets a metadata value.
func (e *LogEntry) SetMeta(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// JSON returns the entry as JSON bytes.
func (e *LogEntry) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// String returns a short human-readable representation.
func (e *LogEntry) String() string {
	return e.Timestamp.String() + " [" + string(e.Level) + "] " + e.Message
}
