package query

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vibesql/pgquery/internal/postgres"
)

// ExecutionResult is what an invocation returns to its caller
type ExecutionResult struct {
	Changed       bool             `json:"changed"`
	StatusMessage string           `json:"status_message"`
	QueryResults  []map[string]any `json:"query_results"`
	RowCount      int              `json:"row_count"`
	// RowsAffected is the count carried by the command tag
	RowsAffected int64                       `json:"rows_affected"`
	Facts        map[string][]map[string]any `json:"facts,omitempty"`
	// Query is the statement as resolved, before placeholders are rewritten
	Query     string `json:"query"`
	CheckMode bool   `json:"check_mode"`
}

// IsChanged classifies a command tag. Any tag mentioning SELECT is treated
// as read-only; everything else as a mutation. This is a substring check on
// the tag, not a parse of the statement.
func IsChanged(statusMessage string) bool {
	return !strings.Contains(statusMessage, "SELECT")
}

// buildResult materializes an outcome into a result. Statements that
// produced no rows yield an empty set rather than an error.
func buildResult(outcome *postgres.Outcome, fact string) *ExecutionResult {
	rows := make([]map[string]any, 0, len(outcome.Rows))
	for _, r := range outcome.Rows {
		rows = append(rows, normalizeRow(r))
	}

	result := &ExecutionResult{
		Changed:       IsChanged(outcome.CommandTag),
		StatusMessage: outcome.CommandTag,
		QueryResults:  rows,
		RowCount:      len(rows),
		RowsAffected:  outcome.RowsAffected,
	}

	if fact != "" && len(rows) > 0 {
		result.Facts = map[string][]map[string]any{fact: rows}
	}

	return result
}

func normalizeRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue turns driver values into JSON-friendly ones
func normalizeValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
