package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/star-labs/logscanner/internal/models"
)

// Recognized text log patterns, most specific first.
var (
	springBootPattern = regexp.MustCompile(`(?i)^(?P<timestamp>\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,6})?)\s+` +
		`(?P<level>TRACE|DEBUG|INFO|WARN|ERROR)\s+` +
		`(?P<pid>\d+)?\s*---\s+` +
		`\[\s*(?P<thread>[^\]]+)\]\s+` +
		`(?P<logger>[\w.$]+)\s*:\s+` +
		`(?P<message>.*)$`)

	log4jPattern = regexp.MustCompile(`(?i)^(?P<timestamp>\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,6})?)\s+` +
		`(?:\[(?P<thread>[^\]]+)\]\s+)?` +
		`(?P<level>TRACE|DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|SEVERE)\s+` +
		`(?:(?P<logger>[\w.$]+)\s+[-:]\s+)?` +
		`(?P<message>.*)$`)

	apachePattern = regexp.MustCompile(`(?i)^(?P<ip>[\d.]+|[\da-f:]+)\s+` +
		`(?P<ident>\S+)\s+` +
		`(?P<user>\S+)\s+` +
		`\[(?P<timestamp>[^\]]+)\]\s+` +
		`"(?P<request>[^"]*)"\s+` +
		`(?P<status>\d{3})\s+` +
		`(?P<bytes>\d+|-)(?:\s+` +
		`"(?P<referer>[^"]*)"\s+` +
		`"(?P<useragent>[^"]*)")?$`)

	syslogPattern = regexp.MustCompile(`^(?P<timestamp>\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+` +
		`(?P<hostname>[\w.-]+)\s+` +
		`(?P<service>[\w.-]+)` +
		`(?:\[(?P<pid>\d+)\])?:?\s+` +
		`(?P<message>.*)$`)

	isoPattern = regexp.MustCompile(`(?i)^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+` +
		`(?P<level>TRACE|DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|SEVERE)?\s*` +
		`(?P<message>.*)$`)

	simplePattern = regexp.MustCompile(`(?i)^\[?(?P<timestamp>[^\]]+)\]?\s+` +
		`(?P<level>TRACE|DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|SEVERE)\s*:?\s+` +
		`(?P<message>.*)$`)
)

// Stack trace recognition.
var (
	stackTraceLinePattern = regexp.MustCompile(`^(?:\s+at\s+|\s+\.{3}\s+\d+\s+more|Caused\s+by:|Suppressed:)`)
	exceptionLinePattern  = regexp.MustCompile(`^[\w.$]+(?:Exception|Error|Throwable)(?::\s+.*)?$`)
)

// Metadata extraction.
var (
	keyValuePattern  = regexp.MustCompile(`([\w.]+)=(?:"([^"]*)"|'([^']*)'|([^\s,"']+))`)
	ipPattern        = regexp.MustCompile(`\b(?:(?:\d{1,3}\.){3}\d{1,3}|(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4})\b`)
	urlPattern       = regexp.MustCompile(`https?://[^\s"'<>]+`)
	requestIDPattern = regexp.MustCompile(`(?i)(?:request[_-]?id|correlation[_-]?id|trace[_-]?id|x-request-id)[=:\s]+([\w-]+)`)
)

// textPattern pairs a compiled pattern with its multi-line capability.
type textPattern struct {
	name      string
	re        *regexp.Regexp
	multiLine bool
}

// textPatterns are tried in order; first full match wins.
var textPatterns = []textPattern{
	{"SPRING_BOOT", springBootPattern, true},
	{"LOG4J", log4jPattern, true},
	{"APACHE", apachePattern, false},
	{"SYSLOG", syslogPattern, true},
	{"ISO", isoPattern, true},
	{"SIMPLE", simplePattern, true},
}

// TextParser handles plain-text logs: Spring Boot, Log4j/Logback,
// Apache/Nginx combined, syslog, ISO-stamped, and simple bracketed
// lines, with multi-line stack trace assembly. Unmatched lines become
// basic INFO entries so ingestion never fails on one bad line.
type TextParser struct {
	buffered   *models.LogEntry
	stackTrace strings.Builder

	// lastEmitted is the most recent successful entry. Orphan stack
	// trace lines attach to it; the entry is shared with the batch
	// writer, so the append is visible until the batch flushes.
	lastEmitted *models.LogEntry
}

// NewTextParser creates a text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Format() Format { return FormatText }
func (p *TextParser) Priority() int  { return 0 }
func (p *TextParser) MultiLine() bool {
	return true
}

func (p *TextParser) Description() string {
	return "Text log parser supporting Spring Boot, Log4j, Apache, syslog, and custom formats"
}

// CanParse accepts anything that is not JSON-shaped. With an empty
// sample it falls back to extension matching.
func (p *TextParser) CanParse(fileName, sample string) bool {
	trimmed := strings.TrimSpace(sample)
	if trimmed == "" {
		lower := strings.ToLower(fileName)
		return strings.HasSuffix(lower, ".log") || strings.HasSuffix(lower, ".txt") ||
			strings.HasSuffix(lower, ".out") || strings.HasSuffix(lower, ".err")
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return false
	}
	return true
}

// ParseLine classifies one line: stack trace continuation, exception
// header, recognized pattern, or basic fallback entry.
func (p *TextParser) ParseLine(line string, lineNumber int64, ctx *Context) Outcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		if p.buffered != nil {
			return Success(p.flushBuffered())
		}
		return Skipped(lineNumber, "empty line")
	}

	if max := ctx.MaxLineLength; max > 0 && len(line) > max {
		line = line[:max]
	}

	if stackTraceLinePattern.MatchString(line) {
		return p.handleStackTraceLine(line, lineNumber, ctx)
	}

	if exceptionLinePattern.MatchString(trimmed) {
		if p.buffered != nil {
			p.flushBuffered()
		}
		return p.beginException(line, lineNumber, ctx)
	}

	for _, tp := range textPatterns {
		match := tp.re.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if p.buffered != nil {
			p.flushBuffered()
		}

		entry := p.entryFromMatch(tp, match, line, lineNumber, ctx)
		if tp.multiLine && hasStackTraceIndicator(entry.Message) {
			p.buffered = entry
			p.stackTrace.Reset()
			return Buffered(lineNumber, line)
		}
		p.lastEmitted = entry
		return Success(entry)
	}

	if p.buffered != nil {
		p.appendTrace(line)
		return Continuation(lineNumber, line)
	}

	entry := p.basicEntry(line, lineNumber, ctx)
	p.lastEmitted = entry
	return Success(entry)
}

// Flush emits any residual buffered entry at EOF.
func (p *TextParser) Flush() *models.LogEntry {
	if p.buffered == nil {
		return nil
	}
	return p.flushBuffered()
}

// Reset clears the multi-line state.
func (p *TextParser) Reset() {
	p.buffered = nil
	p.lastEmitted = nil
	p.stackTrace.Reset()
}

func (p *TextParser) handleStackTraceLine(line string, lineNumber int64, ctx *Context) Outcome {
	if p.buffered != nil {
		p.appendTrace(line)
		return Continuation(lineNumber, line)
	}

	if p.lastEmitted != nil {
		if p.lastEmitted.StackTrace == "" {
			p.lastEmitted.SetStackTrace(line)
		} else {
			p.lastEmitted.SetStackTrace(p.lastEmitted.StackTrace + "\n" + line)
		}
		return Continuation(lineNumber, line)
	}

	// Stack trace line with no owning entry: keep it on its own.
	entry := p.basicEntry(line, lineNumber, ctx)
	entry.SetStackTrace(line)
	p.lastEmitted = entry
	return Success(entry)
}

func (p *TextParser) beginException(line string, lineNumber int64, ctx *Context) Outcome {
	entry := p.basicEntry(line, lineNumber, ctx)
	entry.SetLevel(models.LevelError)
	entry.HasStackTrace = true

	p.buffered = entry
	p.stackTrace.Reset()
	p.stackTrace.WriteString(line)

	return Buffered(lineNumber, line)
}

func (p *TextParser) appendTrace(line string) {
	if p.stackTrace.Len() > 0 {
		p.stackTrace.WriteString("\n")
	}
	p.stackTrace.WriteString(line)
}

func (p *TextParser) flushBuffered() *models.LogEntry {
	entry := p.buffered
	if p.stackTrace.Len() > 0 {
		entry.SetStackTrace(p.stackTrace.String())
	}
	p.buffered = nil
	p.stackTrace.Reset()
	p.lastEmitted = entry
	return entry
}

func (p *TextParser) entryFromMatch(tp textPattern, match []string, line string, lineNumber int64, ctx *Context) *models.LogEntry {
	groups := namedGroups(tp.re, match)

	entry := &models.LogEntry{
		ID:         uuid.New().String(),
		JobID:      ctx.JobID,
		FileName:   ctx.FileName,
		LineNumber: lineNumber,
		RawLine:    line,
		IndexedAt:  models.Now(),
	}

	if ts := groups["timestamp"]; ts != "" {
		if t, ok := ParseTimestamp(ts, ctx.TimestampFormat); ok {
			entry.Timestamp = models.NewTimestamp(t)
		}
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = models.Now()
	}

	if level := groups["level"]; level != "" {
		entry.SetLevel(models.NormalizeLevel(level))
	} else if status := groups["status"]; status != "" {
		// Apache lines carry no level; infer one from the HTTP status.
		code, _ := strconv.Atoi(status)
		switch {
		case code >= 500:
			entry.SetLevel(models.LevelError)
		case code >= 400:
			entry.SetLevel(models.LevelWarn)
		default:
			entry.SetLevel(models.LevelInfo)
		}
	} else {
		entry.SetLevel(models.LevelInfo)
	}

	if thread := groups["thread"]; thread != "" {
		entry.Thread = strings.TrimSpace(thread)
	}

	logger := groups["logger"]
	if logger == "" {
		logger = groups["service"]
	}
	if logger != "" {
		entry.Logger = logger
		parts := strings.Split(logger, ".")
		entry.Source = parts[len(parts)-1]
	}

	if hostname := groups["hostname"]; hostname != "" {
		entry.Hostname = hostname
	}

	message := groups["message"]
	if message == "" {
		if request := groups["request"]; request != "" {
			message = strings.TrimSpace(request + " " + groups["status"])
		} else {
			message = line
		}
	}
	entry.Message = strings.TrimSpace(message)

	if meta := extractMetadata(line, tp.name, groups); len(meta) > 0 {
		entry.Metadata = meta
	}

	return entry
}

func (p *TextParser) basicEntry(line string, lineNumber int64, ctx *Context) *models.LogEntry {
	entry := &models.LogEntry{
		ID:         uuid.New().String(),
		JobID:      ctx.JobID,
		FileName:   ctx.FileName,
		LineNumber: lineNumber,
		RawLine:    line,
		Message:    line,
		Timestamp:  models.Now(),
		IndexedAt:  models.Now(),
	}
	entry.SetLevel(models.LevelInfo)
	return entry
}

func hasStackTraceIndicator(message string) bool {
	return strings.Contains(message, "Exception") ||
		strings.Contains(message, "Error") ||
		strings.Contains(message, "Throwable")
}

// namedGroups maps capture group names to their matched values.
func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}

func extractMetadata(line, patternName string, groups map[string]string) map[string]any {
	meta := make(map[string]any)

	for _, kv := range keyValuePattern.FindAllStringSubmatch(line, -1) {
		value := kv[2]
		if value == "" {
			value = kv[3]
		}
		if value == "" {
			value = kv[4]
		}
		meta[kv[1]] = value
	}

	if ip := ipPattern.FindString(line); ip != "" {
		meta["ip_address"] = ip
	}
	if url := urlPattern.FindString(line); url != "" {
		meta["url"] = url
	}
	if id := requestIDPattern.FindStringSubmatch(line); id != nil {
		meta["request_id"] = id[1]
	}

	switch patternName {
	case "APACHE":
		if ip := groups["ip"]; ip != "" {
			meta["client_ip"] = ip
		}
		if user := groups["user"]; user != "" && user != "-" {
			meta["user"] = user
		}
		if status := groups["status"]; status != "" {
			if code, err := strconv.Atoi(status); err == nil {
				meta["http_status"] = code
			}
		}
		if bytes := groups["bytes"]; bytes != "" && bytes != "-" {
			if n, err := strconv.ParseInt(bytes, 10, 64); err == nil {
				meta["bytes"] = n
			}
		}
		if referer := groups["referer"]; referer != "" && referer != "-" {
			meta["referer"] = referer
		}
		if ua := groups["useragent"]; ua != "" && ua != "-" {
			meta["user_agent"] = ua
		}
	case "SYSLOG":
		if pid := groups["pid"]; pid != "" {
			if n, err := strconv.Atoi(pid); err == nil {
				meta["pid"] = n
			}
		}
	}

	return meta
}
