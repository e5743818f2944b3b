package query

import (
	"fmt"
	"strings"
)

// entryColumns is the scan order shared by the search builder and the
// executor's row scanner.
const entryColumns = `id, job_id, line_number, timestamp, indexed_at, level, message,
       raw_line, logger, thread, source, file_name, hostname,
       application, environment, stack_trace, has_error,
       has_stack_trace, metadata, tags`

// buildConditions translates the request filters into WHERE conditions.
// Every condition is parameterized; identifiers only ever come from the
// package allowlists.
func buildConditions(r *Request) ([]string, []any) {
	var conditions []string
	var args []any

	conditions = append(conditions, "job_id = ?")
	args = append(args, r.JobID)

	if len(r.Levels) > 0 {
		placeholders := make([]string, len(r.Levels))
		for i, l := range r.Levels {
			placeholders[i] = "?"
			args = append(args, l)
		}
		conditions = append(conditions, fmt.Sprintf("level IN (%s)", strings.Join(placeholders, ", ")))
	}

	exact := []struct {
		column string
		value  string
	}{
		{"file_name", r.FileName},
		{"logger", r.Logger},
		{"thread", r.Thread},
		{"source", r.Source},
		{"hostname", r.Hostname},
		{"application", r.Application},
		{"environment", r.Environment},
	}
	for _, f := range exact {
		if f.value == "" {
			continue
		}
		if cond, arg := matchCondition(f.column, f.value); cond != "" {
			conditions = append(conditions, cond)
			args = append(args, arg)
		}
	}

	if r.HasError != nil {
		conditions = append(conditions, "has_error = ?")
		args = append(args, boolArg(*r.HasError))
	}
	if r.HasStackTrace != nil {
		conditions = append(conditions, "has_stack_trace = ?")
		args = append(args, boolArg(*r.HasStackTrace))
	}

	if len(r.Tags) > 0 {
		conditions = append(conditions, "hasAny(tags, ?)")
		args = append(args, r.Tags)
	}

	if r.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, r.StartDate.Time)
	}
	if r.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, r.EndDate.Time)
	}

	if r.MinLineNumber != nil {
		conditions = append(conditions, "line_number >= ?")
		args = append(args, *r.MinLineNumber)
	}
	if r.MaxLineNumber != nil {
		conditions = append(conditions, "line_number <= ?")
		args = append(args, *r.MaxLineNumber)
	}

	if text := strings.TrimSpace(r.SearchText); text != "" {
		cond, searchArgs := searchCondition(text, r.SearchFields)
		conditions = append(conditions, cond)
		args = append(args, searchArgs...)
	}

	return conditions, args
}

// matchCondition builds a term filter, switching to LIKE when the
// value carries * or ? wildcards.
func matchCondition(column, value string) (string, any) {
	if strings.ContainsAny(value, "*?") {
		return fmt.Sprintf("%s LIKE ?", column), wildcardToLike(value)
	}
	return fmt.Sprintf("%s = ?", column), value
}

// wildcardToLike converts glob-style wildcards to a LIKE pattern,
// escaping any literal LIKE metacharacters first.
func wildcardToLike(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(value)
	return strings.NewReplacer("*", "%", "?", "_").Replace(escaped)
}

// searchCondition requires every whitespace token to match at least
// one search field, case-insensitively. AND across tokens, OR across
// fields.
func searchCondition(text string, fields []string) (string, []any) {
	tokens := strings.Fields(text)
	var args []any

	tokenConds := make([]string, 0, len(tokens))
	for _, token := range tokens {
		fieldConds := make([]string, 0, len(fields))
		for _, field := range fields {
			column := searchColumns[field]
			fieldConds = append(fieldConds, fmt.Sprintf("positionCaseInsensitive(%s, ?) > 0", column))
			args = append(args, token)
		}
		tokenConds = append(tokenConds, "("+strings.Join(fieldConds, " OR ")+")")
	}

	return "(" + strings.Join(tokenConds, " AND ") + ")", args
}

func boolArg(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func whereClause(conditions []string) string {
	return " WHERE " + strings.Join(conditions, " AND ")
}

// buildSearch compiles the request into the paged entry query.
func buildSearch(r *Request) (string, []any) {
	conditions, args := buildConditions(r)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(entryColumns)
	sb.WriteString(" FROM log_entries")
	sb.WriteString(whereClause(conditions))

	direction := "DESC"
	if strings.EqualFold(r.SortDirection, "asc") {
		direction = "ASC"
	}
	sortCol := sortColumns[r.SortBy]
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", sortCol, direction))
	if sortCol != "line_number" {
		// Stable order for entries sharing the sort key.
		sb.WriteString(fmt.Sprintf(", line_number %s", direction))
	}

	sb.WriteString(fmt.Sprintf(" LIMIT %d", r.Size))
	if r.Page > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", r.Page*r.Size))
	}

	return sb.String(), args
}

// buildCount compiles the request into its total-count query.
func buildCount(r *Request) (string, []any) {
	conditions, args := buildConditions(r)
	return "SELECT count() FROM log_entries" + whereClause(conditions), args
}

// buildTimeline compiles the date-histogram query with error and
// warning sub-counts per bucket.
func buildTimeline(jobID, intervalClause string) (string, []any) {
	sql := fmt.Sprintf(`
		SELECT toStartOfInterval(timestamp, %s) AS bucket,
		       count() AS total,
		       countIf(level = 'ERROR') AS error_count,
		       countIf(level = 'WARN') AS warn_count
		FROM log_entries
		WHERE job_id = ?
		GROUP BY bucket
		ORDER BY bucket
	`, intervalClause)
	return sql, []any{jobID}
}

// buildUniqueValues compiles the terms aggregation for a keyword column.
func buildUniqueValues(jobID, column string, limit int) (string, []any) {
	sql := fmt.Sprintf(`
		SELECT %s AS value, count() AS cnt
		FROM log_entries
		WHERE job_id = ? AND %s != ''
		GROUP BY value
		ORDER BY cnt DESC
		LIMIT %d
	`, column, column, limit)
	return sql, []any{jobID}
}

// buildLevelCounts compiles the per-level distribution query.
func buildLevelCounts(r *Request) (string, []any) {
	conditions, args := buildConditions(r)
	return "SELECT level, count() FROM log_entries" + whereClause(conditions) +
		" GROUP BY level", args
}

// buildSummaryTotals compiles the single-row aggregate backing the
// filter summary.
func buildSummaryTotals(r *Request) (string, []any) {
	conditions, args := buildConditions(r)
	sql := `
		SELECT count(),
		       countIf(has_error = 1),
		       countIf(has_stack_trace = 1),
		       min(timestamp),
		       max(timestamp),
		       uniqExact(logger),
		       uniqExact(thread),
		       uniqExact(source)
		FROM log_entries` + whereClause(conditions)
	return sql, args
}

// buildTopValues compiles the top-N terms aggregation used for the
// summary's logger/thread/source rankings.
func buildTopValues(r *Request, column string, limit int) (string, []any) {
	conditions, args := buildConditions(r)
	sql := fmt.Sprintf(`
		SELECT %s AS value, count() AS cnt
		FROM log_entries%s AND %s != ''
		GROUP BY value
		ORDER BY cnt DESC
		LIMIT %d
	`, column, whereClause(conditions), column, limit)
	return sql, args
}
