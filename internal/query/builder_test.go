package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchBasic(t *testing.T) {
	r := &Request{JobID: "job-1"}
	r.Normalize()

	sqlText, args := buildSearch(r)

	assert.Contains(t, sqlText, "FROM log_entries")
	assert.Contains(t, sqlText, "WHERE job_id = ?")
	assert.Contains(t, sqlText, "ORDER BY timestamp DESC, line_number DESC")
	assert.Contains(t, sqlText, "LIMIT 50")
	assert.NotContains(t, sqlText, "OFFSET")
	assert.Equal(t, []any{"job-1"}, args)
}

func TestBuildSearchPagination(t *testing.T) {
	r := &Request{JobID: "job-1", Page: 3, Size: 20, SortBy: "lineNumber", SortDirection: "asc"}
	r.Normalize()

	sqlText, _ := buildSearch(r)

	assert.Contains(t, sqlText, "ORDER BY line_number ASC")
	assert.NotContains(t, sqlText, "line_number ASC, line_number")
	assert.Contains(t, sqlText, "LIMIT 20 OFFSET 60")
}

func TestBuildSearchLevelFilter(t *testing.T) {
	r := &Request{JobID: "job-1", Levels: []string{"error", "warn"}}
	r.Normalize()

	sqlText, args := buildSearch(r)

	assert.Contains(t, sqlText, "level IN (?, ?)")
	assert.Equal(t, []any{"job-1", "ERROR", "WARN"}, args)
}

func TestBuildSearchWildcard(t *testing.T) {
	r := &Request{JobID: "job-1", Logger: "com.example.*", Thread: "worker-?"}
	r.Normalize()

	sqlText, args := buildSearch(r)

	assert.Contains(t, sqlText, "logger LIKE ?")
	assert.Contains(t, sqlText, "thread LIKE ?")
	require.Len(t, args, 3)
	assert.Equal(t, "com.example.%", args[1])
	assert.Equal(t, "worker-_", args[2])
}

func TestWildcardToLike(t *testing.T) {
	tests := []struct{ in, want string }{
		{"com.example.*", "com.example.%"},
		{"worker-?", "worker-_"},
		{"100%*", `100\%%`},
		{"a_b*", `a\_b%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wildcardToLike(tt.in), "input %q", tt.in)
	}
}

func TestBuildSearchExactMatch(t *testing.T) {
	r := &Request{JobID: "job-1", Application: "auth", Environment: "prod"}
	r.Normalize()

	sqlText, args := buildSearch(r)

	assert.Contains(t, sqlText, "application = ?")
	assert.Contains(t, sqlText, "environment = ?")
	assert.Equal(t, []any{"job-1", "auth", "prod"}, args)
}

func TestBuildSearchBooleansAndRanges(t *testing.T) {
	hasError := true
	minLine := int64(10)
	maxLine := int64(99)
	r := &Request{
		JobID:         "job-1",
		HasError:      &hasError,
		MinLineNumber: &minLine,
		MaxLineNumber: &maxLine,
	}
	r.Normalize()

	sqlText, args := buildSearch(r)

	assert.Contains(t, sqlText, "has_error = ?")
	assert.Contains(t, sqlText, "line_number >= ?")
	assert.Contains(t, sqlText, "line_number <= ?")
	assert.Equal(t, []any{"job-1", uint8(1), int64(10), int64(99)}, args)
}

func TestBuildSearchFullText(t *testing.T) {
	r := &Request{JobID: "job-1", SearchText: "timeout database"}
	r.Normalize()

	sqlText, args := buildSearch(r)

	// Two tokens AND'ed, each OR'ed across the three default fields.
	assert.Equal(t, 2, strings.Count(sqlText, "positionCaseInsensitive(message, ?)"))
	assert.Equal(t, 2, strings.Count(sqlText, "positionCaseInsensitive(raw_line, ?)"))
	assert.Equal(t, 2, strings.Count(sqlText, "positionCaseInsensitive(stack_trace, ?)"))
	assert.Contains(t, sqlText, ") AND (")
	// jobId + 2 tokens x 3 fields
	assert.Len(t, args, 7)
	assert.Equal(t, "timeout", args[1])
	assert.Equal(t, "database", args[4])
}

func TestBuildCount(t *testing.T) {
	r := &Request{JobID: "job-1", Levels: []string{"ERROR"}}
	r.Normalize()

	sqlText, args := buildCount(r)

	assert.True(t, strings.HasPrefix(sqlText, "SELECT count() FROM log_entries"))
	assert.NotContains(t, sqlText, "ORDER BY")
	assert.NotContains(t, sqlText, "LIMIT")
	assert.Equal(t, []any{"job-1", "ERROR"}, args)
}

func TestBuildTimeline(t *testing.T) {
	sqlText, args := buildTimeline("job-1", "INTERVAL 1 HOUR")

	assert.Contains(t, sqlText, "toStartOfInterval(timestamp, INTERVAL 1 HOUR)")
	assert.Contains(t, sqlText, "countIf(level = 'ERROR')")
	assert.Contains(t, sqlText, "countIf(level = 'WARN')")
	assert.Contains(t, sqlText, "GROUP BY bucket")
	assert.Equal(t, []any{"job-1"}, args)
}

func TestBuildUniqueValues(t *testing.T) {
	sqlText, args := buildUniqueValues("job-1", "logger", 10)

	assert.Contains(t, sqlText, "SELECT logger AS value")
	assert.Contains(t, sqlText, "logger != ''")
	assert.Contains(t, sqlText, "ORDER BY cnt DESC")
	assert.Contains(t, sqlText, "LIMIT 10")
	assert.Equal(t, []any{"job-1"}, args)
}

func TestBuildTopValues(t *testing.T) {
	r := &Request{JobID: "job-1", Levels: []string{"ERROR"}}
	r.Normalize()

	sqlText, args := buildTopValues(r, "thread", 10)

	assert.Contains(t, sqlText, "WHERE job_id = ? AND level IN (?) AND thread != ''")
	assert.Equal(t, []any{"job-1", "ERROR"}, args)
}

func TestBuildSummaryTotals(t *testing.T) {
	r := &Request{JobID: "job-1"}
	r.Normalize()

	sqlText, args := buildSummaryTotals(r)

	assert.Contains(t, sqlText, "countIf(has_error = 1)")
	assert.Contains(t, sqlText, "uniqExact(logger)")
	assert.Contains(t, sqlText, "min(timestamp)")
	assert.Equal(t, []any{"job-1"}, args)
}
