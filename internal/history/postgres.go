package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRecorder writes to the ask_history table created by migrations.
// It does not own the handle.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) (*PostgresRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PostgresRecorder{db: db}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ask_history (trace_id, request_text, generated_sql, state, error_kind, row_count, duration_ms, chart_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.TraceID,
		entry.Request,
		nullIfEmpty(entry.SQL),
		entry.State,
		nullIfEmpty(entry.ErrorKind),
		entry.Rows,
		entry.Duration.Milliseconds(),
		nullIfEmpty(entry.ChartKey),
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ask history: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ask_history WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune ask history: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune ask history rows affected: %w", err)
	}
	return deleted, nil
}

func (r *PostgresRecorder) Close() error { return nil }

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
