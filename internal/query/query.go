package query

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnavailable covers connect, ping and session setup faults.
	ErrUnavailable = errors.New("store unavailable")
	// ErrStatement covers statements the store rejected or failed to run.
	ErrStatement = errors.New("statement failed")
)

// Result is the raw table returned by an executor. Zero rows is a valid
// result, not an error.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// ColumnIndex finds a column by case-insensitive name, or returns -1.
func (r Result) ColumnIndex(name string) int {
	for i, column := range r.Columns {
		if strings.EqualFold(strings.TrimSpace(column), name) {
			return i
		}
	}
	return -1
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}

// FailureClass names the error class for logs and metrics.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrStatement):
		return "statement"
	default:
		return "unknown"
	}
}

// IsReadOnly accepts only SELECT or WITH statements.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// NormalizeValues turns driver byte slices into strings.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
