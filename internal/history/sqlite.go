package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder keeps history in a local file for single-node deployments.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens or creates the database and its schema.
func NewSQLiteRecorder(ctx context.Context, path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	r := &SQLiteRecorder{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ask_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id      TEXT NOT NULL,
			request_text  TEXT NOT NULL,
			generated_sql TEXT,
			state         TEXT NOT NULL,
			error_kind    TEXT,
			row_count     INTEGER NOT NULL DEFAULT 0,
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			chart_key     TEXT,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ask_history_created ON ask_history(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO ask_history
		(trace_id, request_text, generated_sql, state, error_kind, row_count, duration_ms, chart_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TraceID,
		entry.Request,
		nullIfEmpty(entry.SQL),
		entry.State,
		nullIfEmpty(entry.ErrorKind),
		entry.Rows,
		entry.Duration.Milliseconds(),
		nullIfEmpty(entry.ChartKey),
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert ask history: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM ask_history WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune ask history: %w", err)
	}
	return res.RowsAffected()
}

// Count is used by the operator tooling and tests.
func (r *SQLiteRecorder) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ask_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ask history: %w", err)
	}
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
