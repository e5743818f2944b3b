package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/star-labs/logscanner/internal/models"
)

// Field alias lists for common JSON log schemas (Logstash, Bunyan,
// Winston, and friends). First present alias wins.
var (
	jsonTimestampFields = []string{"timestamp", "time", "@timestamp", "datetime", "date", "ts", "log_time", "logTime"}
	jsonLevelFields     = []string{"level", "severity", "log_level", "logLevel", "loglevel", "levelname"}
	jsonMessageFields   = []string{"message", "msg", "text", "log_message", "logMessage", "description"}
	jsonLoggerFields    = []string{"logger", "logger_name", "loggerName", "class", "category", "name"}
	jsonThreadFields    = []string{"thread", "thread_name", "threadName", "thread_id", "threadId"}
	jsonStackFields     = []string{"stack_trace", "stackTrace", "stack", "exception", "error_stack", "errorStack"}
	jsonHostnameFields  = []string{"hostname", "host", "server", "instance", "machine", "node"}
	jsonAppFields       = []string{"application", "app", "service", "service_name", "serviceName", "app_name", "appName"}
	jsonEnvFields       = []string{"environment", "env", "stage", "deployment"}
)

var jsonStandardFields = func() map[string]bool {
	std := make(map[string]bool)
	for _, group := range [][]string{
		jsonTimestampFields, jsonLevelFields, jsonMessageFields,
		jsonLoggerFields, jsonThreadFields, jsonStackFields,
		jsonHostnameFields, jsonAppFields, jsonEnvFields,
	} {
		for _, f := range group {
			std[strings.ToLower(f)] = true
		}
	}
	return std
}()

// JSONParser handles JSON and NDJSON logs: one object per line, with
// automatic field mapping from common schemas. It is stateless.
type JSONParser struct{}

// NewJSONParser creates a JSON parser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

func (p *JSONParser) Format() Format   { return FormatJSON }
func (p *JSONParser) Priority() int    { return 20 }
func (p *JSONParser) MultiLine() bool  { return false }
func (p *JSONParser) Reset()           {}
func (p *JSONParser) Flush() *models.LogEntry { return nil }

func (p *JSONParser) Description() string {
	return "JSON/NDJSON log parser with automatic schema detection"
}

// CanParse accepts .json/.ndjson files and any sample that looks like
// a JSON object or array.
func (p *JSONParser) CanParse(fileName, sample string) bool {
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".ndjson") {
		return true
	}
	return isJSONShaped(strings.TrimSpace(sample))
}

func isJSONShaped(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// ParseLine decodes one JSON object into an entry.
func (p *JSONParser) ParseLine(line string, lineNumber int64, ctx *Context) Outcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Skipped(lineNumber, "empty line")
	}

	if !isJSONShaped(trimmed) {
		return Failed(lineNumber, line, ErrInvalidFormat)
	}

	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return Failed(lineNumber, line, fmt.Errorf("decode json: %w", err))
	}

	entry := &models.LogEntry{
		ID:         uuid.New().String(),
		JobID:      ctx.JobID,
		FileName:   ctx.FileName,
		LineNumber: lineNumber,
		RawLine:    line,
		IndexedAt:  models.Now(),
	}

	entry.Timestamp = jsonTimestamp(fields, ctx.TimestampFormat)
	rawLevel := findAlias(fields, jsonLevelFields)
	entry.SetLevel(models.NormalizeLevel(rawLevel))
	entry.Message = findAlias(fields, jsonMessageFields)

	if logger := findAlias(fields, jsonLoggerFields); logger != "" {
		entry.Logger = logger
		parts := strings.Split(logger, ".")
		entry.Source = parts[len(parts)-1]
	}

	entry.Thread = findAlias(fields, jsonThreadFields)
	entry.Hostname = findAlias(fields, jsonHostnameFields)
	entry.Application = findAlias(fields, jsonAppFields)
	entry.Environment = findAlias(fields, jsonEnvFields)

	if trace := findAlias(fields, jsonStackFields); trace != "" {
		entry.SetStackTrace(trace)
		// A stack trace with no explicit level marks the entry as an error.
		if rawLevel == "" {
			entry.SetLevel(models.LevelError)
		}
	}

	if meta := jsonMetadata(fields); len(meta) > 0 {
		entry.Metadata = meta
	}

	return Success(entry)
}

// jsonTimestamp resolves the timestamp from its alias list: textual
// values run through the shared fallback chain, numeric values are
// epoch millis or seconds. Missing timestamps default to now.
func jsonTimestamp(fields map[string]any, userFormat string) models.Timestamp {
	for _, name := range jsonTimestampFields {
		value, ok := fields[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if t, ok := ParseTimestamp(v, userFormat); ok {
				return models.NewTimestamp(t)
			}
		case json.Number:
			if epoch, err := v.Int64(); err == nil {
				if epoch > 1_000_000_000_000 {
					return models.NewTimestamp(time.UnixMilli(epoch))
				}
				return models.NewTimestamp(time.Unix(epoch, 0))
			}
		}
	}
	return models.Now()
}

// findAlias returns the first present alias value in textual form.
func findAlias(fields map[string]any, names []string) string {
	for _, name := range names {
		value, ok := fields[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		case bool:
			if v {
				return "true"
			}
			return "false"
		default:
			data, _ := json.Marshal(v)
			return string(data)
		}
	}
	return ""
}

// jsonMetadata collects non-standard fields, preserving scalar types.
// Objects and arrays are stored in their textual form.
func jsonMetadata(fields map[string]any) map[string]any {
	meta := make(map[string]any)
	for name, value := range fields {
		if jsonStandardFields[strings.ToLower(name)] || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			meta[name] = v
		case json.Number:
			if i, err := v.Int64(); err == nil {
				meta[name] = i
			} else if f, err := v.Float64(); err == nil {
				meta[name] = f
			} else {
				meta[name] = v.String()
			}
		case bool:
			meta[name] = v
		default:
			data, _ := json.Marshal(v)
			meta[name] = string(data)
		}
	}
	return meta
}
