package gtfs

import (
	"fmt"
	"strings"
)

// RowIssue pinpoints one offending input record.
type RowIssue struct {
	Table   string `json:"table"`
	Row     int    `json:"row"` // 1-based line number in the source file, 0 when table-level
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

func (i RowIssue) String() string {
	if i.Row > 0 {
		return fmt.Sprintf("%s row %d (%s): %s", i.Table, i.Row, i.ID, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Table, i.Message)
}

// ValidationError aggregates every defect found while ingesting an archive.
// Ingestion never stops at the first defect: callers need the full list to
// fix the feed in one pass.
type ValidationError struct {
	Issues []RowIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "gtfs validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("gtfs validation failed (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) add(table string, row int, id, format string, args ...interface{}) {
	e.Issues = append(e.Issues, RowIssue{
		Table:   table,
		Row:     row,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *ValidationError) hasIssues() bool {
	return len(e.Issues) > 0
}
