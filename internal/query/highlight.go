package query

import (
	"strings"
	"unicode/utf8"

	"github.com/star-labs/logscanner/internal/models"
)

// Highlight markers and fragment shape.
const (
	highlightPre  = `<em class="highlight">`
	highlightPost = `</em>`
	fragmentSize  = 150
	maxFragments  = 3
)

// buildHighlights produces entryId -> fieldName -> fragments for every
// search field containing a search token.
func buildHighlights(entries []*models.LogEntry, searchText string, fields []string) map[string]map[string][]string {
	tokens := strings.Fields(searchText)
	if len(tokens) == 0 {
		return nil
	}

	highlights := make(map[string]map[string][]string)
	for _, entry := range entries {
		perField := make(map[string][]string)
		for _, field := range fields {
			value := fieldValue(entry, field)
			if value == "" {
				continue
			}
			fragments := highlightValue(value, tokens)
			if len(fragments) > 0 {
				perField[field] = fragments
			}
		}
		if len(perField) > 0 {
			highlights[entry.ID] = perField
		}
	}

	if len(highlights) == 0 {
		return nil
	}
	return highlights
}

// highlightValue returns up to maxFragments windows of the value with
// token occurrences wrapped in the highlight markers.
func highlightValue(value string, tokens []string) []string {
	var fragments []string
	for _, token := range tokens {
		offset := 0
		for len(fragments) < maxFragments {
			at, end := indexFold(value, token, offset)
			if at < 0 {
				break
			}
			fragments = append(fragments, fragmentAround(value, at, end))
			offset = end
		}
		if len(fragments) >= maxFragments {
			break
		}
	}
	return fragments
}

// indexFold finds the first case-insensitive occurrence of token in
// value at or after offset. It returns the start and end byte offsets
// of the match in value itself, so the match can be sliced out of
// value directly even when case folding changes a rune's encoded
// length. Returns -1, -1 when there is no match.
func indexFold(value, token string, offset int) (int, int) {
	tokenRunes := utf8.RuneCountInString(token)
	if tokenRunes == 0 {
		return -1, -1
	}

	for at := offset; at < len(value); {
		end := at
		runes := 0
		for runes < tokenRunes && end < len(value) {
			_, size := utf8.DecodeRuneInString(value[end:])
			end += size
			runes++
		}
		if runes < tokenRunes {
			break
		}
		if strings.EqualFold(value[at:end], token) {
			return at, end
		}
		_, size := utf8.DecodeRuneInString(value[at:])
		at += size
	}
	return -1, -1
}

// fragmentAround extracts a window of roughly fragmentSize bytes around
// the match at value[at:end] and wraps the match in the markers. The
// window edges snap outward to rune boundaries.
func fragmentAround(value string, at, end int) string {
	start := at - (fragmentSize-(end-at))/2
	if start < 0 {
		start = 0
	}
	if start > at {
		start = at
	}
	stop := start + fragmentSize
	if stop > len(value) {
		stop = len(value)
		start = stop - fragmentSize
		if start < 0 {
			start = 0
		}
		if start > at {
			start = at
		}
	}
	if stop < end {
		stop = end
	}
	for start > 0 && !utf8.RuneStart(value[start]) {
		start--
	}
	for stop < len(value) && !utf8.RuneStart(value[stop]) {
		stop++
	}

	var sb strings.Builder
	sb.WriteString(value[start:at])
	sb.WriteString(highlightPre)
	sb.WriteString(value[at:end])
	sb.WriteString(highlightPost)
	sb.WriteString(value[end:stop])
	return sb.String()
}

// fieldValue resolves a search field name on an entry.
func fieldValue(entry *models.LogEntry, field string) string {
	switch field {
	case "message":
		return entry.Message
	case "rawLine":
		return entry.RawLine
	case "stackTrace":
		return entry.StackTrace
	case "logger":
		return entry.Logger
	case "thread":
		return entry.Thread
	case "source":
		return entry.Source
	case "fileName":
		return entry.FileName
	case "hostname":
		return entry.Hostname
	case "application":
		return entry.Application
	case "environment":
		return entry.Environment
	default:
		return ""
	}
}
