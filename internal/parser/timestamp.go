package parser

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order of likelihood after ISO-8601 and
// epoch detection. Comma is a valid fractional separator in Go layouts.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05,000",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"02/Jan/2006:15:04:05",
	"Jan 02, 2006 15:04:05",
	"Jan 02 15:04:05",
	"Jan  2 15:04:05",
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp resolves a raw timestamp string, trying in order: the
// user-supplied pattern, ISO-8601 variants, numeric epoch, then the
// common layout list. Returns false only when nothing matched; callers
// fall back to the current time rather than failing the entry.
func ParseTimestamp(raw, userFormat string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if userFormat != "" {
		layout := javaLayout(userFormat)
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return withCurrentYear(t), true
		}
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.In(time.Local), true
		}
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		if epoch > 1_000_000_000_000 {
			return time.UnixMilli(epoch), true
		}
		return time.Unix(epoch, 0), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return withCurrentYear(t), true
		}
	}

	// Apache timestamps carry a trailing zone: 15/Jan/2024:10:30:45 +0000
	if strings.Contains(s, "/") && strings.Contains(s, ":") {
		cleaned, _, _ := strings.Cut(s, " ")
		if t, err := time.ParseInLocation("02/Jan/2006:15:04:05", cleaned, time.Local); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// withCurrentYear fills in the year for year-less layouts like syslog.
func withCurrentYear(t time.Time) time.Time {
	if t.Year() != 0 {
		return t
	}
	now := time.Now()
	return time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// javaLayout converts a java.time DateTimeFormatter pattern into a Go
// time layout. Uploads declare their timestamp format in that notation.
func javaLayout(pattern string) string {
	replacements := []struct{ from, to string }{
		{"yyyy", "2006"},
		{"yy", "06"},
		{"MMMM", "January"},
		{"MMM", "Jan"},
		{"MM", "01"},
		{"dd", "02"},
		{"HH", "15"},
		{"hh", "03"},
		{"mm", "04"},
		{"ss", "05"},
		{"SSSSSS", "000000"},
		{"SSS", "000"},
		{"XXX", "Z07:00"},
		{"XX", "Z0700"},
		{"zzz", "MST"},
		{"Z", "-0700"},
		{"a", "PM"},
	}

	var sb strings.Builder
	i := 0
	for i < len(pattern) {
		// Quoted literals: 'T' emits T.
		if pattern[i] == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				sb.WriteString(pattern[i+1:])
				break
			}
			sb.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, rep := range replacements {
			if strings.HasPrefix(pattern[i:], rep.from) {
				sb.WriteString(rep.to)
				i += len(rep.from)
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(pattern[i])
			i++
		}
	}
	return sb.String()
}
