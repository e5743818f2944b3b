package parser

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/star-labs/logscanner/internal/models"
)

// Column alias sets, compared lower-cased.
var (
	csvTimestampColumns = csvSet("timestamp", "time", "date", "datetime", "@timestamp",
		"log_time", "logtime", "created_at", "createdat", "ts")
	csvLevelColumns = csvSet("level", "severity", "log_level", "loglevel", "levelname",
		"priority", "log_severity")
	csvMessageColumns = csvSet("message", "msg", "text", "log_message", "logmessage",
		"description", "content", "body", "log")
	csvLoggerColumns = csvSet("logger", "logger_name", "loggername", "class", "classname",
		"category", "source", "component", "module")
	csvThreadColumns   = csvSet("thread", "thread_name", "threadname", "thread_id", "threadid")
	csvHostnameColumns = csvSet("hostname", "host", "server", "machine", "node", "instance")
	csvAppColumns      = csvSet("application", "app", "service", "service_name", "servicename", "app_name")
	csvEnvColumns      = csvSet("environment", "env", "stage", "deployment")
	csvStackColumns    = csvSet("stack_trace", "stacktrace", "exception", "error_stack", "traceback")
)

func csvSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// CSVParser handles CSV and TSV log files with delimiter auto-detection,
// header-based column mapping, and typed metadata for unmapped columns.
// Header and delimiter state is per-file; Reset clears it.
type CSVParser struct {
	delimiter rune
	headers   []string
	processed bool

	timestampIdx int
	levelIdx     int
	messageIdx   int
	loggerIdx    int
	threadIdx    int
	hostnameIdx  int
	appIdx       int
	envIdx       int
	stackIdx     int
}

// NewCSVParser creates a CSV parser with cleared per-file state.
func NewCSVParser() *CSVParser {
	p := &CSVParser{}
	p.Reset()
	return p
}

func (p *CSVParser) Format() Format          { return FormatCSV }
func (p *CSVParser) Priority() int           { return 10 }
func (p *CSVParser) MultiLine() bool         { return false }
func (p *CSVParser) Flush() *models.LogEntry { return nil }

func (p *CSVParser) Description() string {
	return "CSV/TSV parser with auto-detection of columns and delimiters"
}

// Reset clears delimiter, headers, and column mappings.
func (p *CSVParser) Reset() {
	p.delimiter = 0
	p.headers = nil
	p.processed = false
	p.timestampIdx = -1
	p.levelIdx = -1
	p.messageIdx = -1
	p.loggerIdx = -1
	p.threadIdx = -1
	p.hostnameIdx = -1
	p.appIdx = -1
	p.envIdx = -1
	p.stackIdx = -1
}

// CanParse accepts .csv/.tsv files and non-JSON samples with a clear
// delimiter in the first line.
func (p *CSVParser) CanParse(fileName, sample string) bool {
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".tsv") {
		return true
	}

	trimmed := strings.TrimSpace(sample)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return false
	}

	firstLine, _, _ := strings.Cut(trimmed, "\n")
	return detectDelimiter(firstLine) != 0
}

// ParseLine splits one row; the first row may be consumed as a header.
func (p *CSVParser) ParseLine(line string, lineNumber int64, ctx *Context) Outcome {
	if strings.TrimSpace(line) == "" {
		return Skipped(lineNumber, "empty line")
	}

	if p.delimiter == 0 {
		p.delimiter = detectDelimiter(line)
		if p.delimiter == 0 {
			p.delimiter = ','
		}
	}

	values, err := p.splitRow(line)
	if err != nil {
		return Failed(lineNumber, line, fmt.Errorf("split csv row: %w", err))
	}

	if !p.processed {
		if isHeaderRow(values) {
			p.mapHeaders(values)
			return Skipped(lineNumber, "header row")
		}
		p.generateDefaultHeaders(len(values))
	}

	return Success(p.entryFromRow(values, lineNumber, ctx))
}

func (p *CSVParser) splitRow(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = p.delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return r.Read()
}

// detectDelimiter counts unquoted candidate delimiters in the line and
// picks the most frequent, requiring at least one occurrence.
// Ties resolve in order: tab, comma, semicolon, pipe.
func detectDelimiter(line string) rune {
	counts := map[rune]int{',': 0, '\t': 0, ';': 0, '|': 0}
	inQuotes := false
	for _, ch := range line {
		if ch == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			if _, ok := counts[ch]; ok {
				counts[ch]++
			}
		}
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max < 1 {
		return 0
	}

	for _, d := range []rune{'\t', ',', ';', '|'} {
		if counts[d] == max {
			return d
		}
	}
	return ','
}

// isHeaderRow treats the first row as a header iff any cell matches a
// known column alias, or every cell is non-numeric.
func isHeaderRow(values []string) bool {
	if len(values) == 0 {
		return false
	}

	for _, v := range values {
		lower := strings.ToLower(strings.TrimSpace(v))
		if csvTimestampColumns[lower] || csvLevelColumns[lower] ||
			csvMessageColumns[lower] || csvLoggerColumns[lower] {
			return true
		}
	}

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return false
		}
	}
	return true
}

func (p *CSVParser) mapHeaders(row []string) {
	p.headers = make([]string, len(row))
	for i, h := range row {
		header := strings.TrimSpace(h)
		p.headers[i] = header

		switch lower := strings.ToLower(header); {
		case csvTimestampColumns[lower]:
			p.timestampIdx = i
		case csvLevelColumns[lower]:
			p.levelIdx = i
		case csvMessageColumns[lower]:
			p.messageIdx = i
		case csvLoggerColumns[lower]:
			p.loggerIdx = i
		case csvThreadColumns[lower]:
			p.threadIdx = i
		case csvHostnameColumns[lower]:
			p.hostnameIdx = i
		case csvAppColumns[lower]:
			p.appIdx = i
		case csvEnvColumns[lower]:
			p.envIdx = i
		case csvStackColumns[lower]:
			p.stackIdx = i
		}
	}
	p.processed = true
}

// generateDefaultHeaders names columns column_0..N and assumes the
// common positional layout: timestamp, level, message.
func (p *CSVParser) generateDefaultHeaders(columns int) {
	p.headers = make([]string, columns)
	for i := range p.headers {
		p.headers[i] = "column_" + strconv.Itoa(i)
	}
	if columns >= 1 {
		p.timestampIdx = 0
	}
	if columns >= 2 {
		p.levelIdx = 1
	}
	if columns >= 3 {
		p.messageIdx = 2
	}
	p.processed = true
}

func (p *CSVParser) entryFromRow(values []string, lineNumber int64, ctx *Context) *models.LogEntry {
	entry := &models.LogEntry{
		ID:         uuid.New().String(),
		JobID:      ctx.JobID,
		FileName:   ctx.FileName,
		LineNumber: lineNumber,
		RawLine:    strings.Join(values, string(p.delimiter)),
		IndexedAt:  models.Now(),
	}

	if raw := p.valueAt(values, p.timestampIdx); raw != "" {
		if t, ok := ParseTimestamp(raw, ctx.TimestampFormat); ok {
			entry.Timestamp = models.NewTimestamp(t)
		}
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = models.Now()
	}

	entry.SetLevel(models.NormalizeLevel(p.valueAt(values, p.levelIdx)))
	entry.Message = p.message(values)
	entry.Logger = p.valueAt(values, p.loggerIdx)
	entry.Thread = p.valueAt(values, p.threadIdx)
	entry.Hostname = p.valueAt(values, p.hostnameIdx)
	entry.Application = p.valueAt(values, p.appIdx)
	entry.Environment = p.valueAt(values, p.envIdx)

	if trace := p.valueAt(values, p.stackIdx); trace != "" {
		entry.SetStackTrace(trace)
	}

	if meta := p.collectMetadata(values); len(meta) > 0 {
		entry.Metadata = meta
	}

	return entry
}

func (p *CSVParser) message(values []string) string {
	if msg := p.valueAt(values, p.messageIdx); msg != "" {
		return msg
	}

	// No message column: concatenate the unmapped remainder.
	var sb strings.Builder
	for i, v := range values {
		if i == p.timestampIdx || i == p.levelIdx || i == p.loggerIdx || i == p.threadIdx {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v)
	}
	return sb.String()
}

func (p *CSVParser) valueAt(values []string, index int) string {
	if index < 0 || index >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[index])
}

func (p *CSVParser) collectMetadata(values []string) map[string]any {
	standard := map[int]bool{
		p.timestampIdx: true, p.levelIdx: true, p.messageIdx: true,
		p.loggerIdx: true, p.threadIdx: true, p.hostnameIdx: true,
		p.appIdx: true, p.envIdx: true, p.stackIdx: true,
	}

	meta := make(map[string]any)
	for i, v := range values {
		if i >= len(p.headers) || standard[i] || v == "" {
			continue
		}
		meta[p.headers[i]] = coerceValue(v)
	}
	return meta
}

// coerceValue converts a cell to its narrowest type:
// boolean, then integer, then float, then string.
func coerceValue(value string) any {
	if strings.EqualFold(value, "true") {
		return true
	}
	if strings.EqualFold(value, "false") {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
