// Package duckdb answers statements from a Parquet snapshot of stock_data
// held in the object store, using an embedded DuckDB per call.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
)

type Options struct {
	TableName string
	Logger    *slog.Logger
}

type Engine struct {
	store       storage.ObjectStore
	snapshotKey string
	tableName   string
	logger      *slog.Logger
}

func NewEngine(store storage.ObjectStore, snapshotKey string, opts Options) *Engine {
	tableName := strings.TrimSpace(opts.TableName)
	if tableName == "" {
		tableName = schema.TableName
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{store: store, snapshotKey: snapshotKey, tableName: tableName, logger: logger}
}

func (e *Engine) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	result, err := e.execute(ctx, sqlText)
	if err != nil {
		class := query.FailureClass(err)
		observability.ObserveQueryFailure(class)
		e.logger.ErrorContext(ctx, "snapshot query failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("class", class),
			slog.String("snapshot_key", e.snapshotKey),
			slog.Any("error", err),
		)
		return query.Result{}, err
	}
	observability.ObserveQueryRows(len(result.Rows))
	return result, nil
}

func (e *Engine) execute(ctx context.Context, sqlText string) (query.Result, error) {
	statement := query.StripTrailingSemicolons(sqlText)
	if !query.IsReadOnly(statement) {
		return query.Result{}, fmt.Errorf("%w: only read-only SELECT/WITH statements are allowed", query.ErrStatement)
	}
	if e.store == nil {
		return query.Result{}, fmt.Errorf("%w: object store is required", query.ErrUnavailable)
	}
	if strings.TrimSpace(e.snapshotKey) == "" {
		return query.Result{}, fmt.Errorf("%w: snapshot key is required", query.ErrUnavailable)
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "techfin-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: create query temp dir: %w", query.ErrUnavailable, err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "snapshot.parquet")
	if err := e.download(ctx, localPath); err != nil {
		return query.Result{}, fmt.Errorf("%w: %w", query.ErrUnavailable, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: open duckdb: %w", query.ErrUnavailable, err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(e.tableName), quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return query.Result{}, fmt.Errorf("%w: create view %q: %w", query.ErrUnavailable, e.tableName, err)
	}

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: %w", query.ErrStatement, err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := query.ScanRows(rows)
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: %w", query.ErrStatement, err)
	}
	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) download(ctx context.Context, localPath string) error {
	reader, err := e.store.Get(ctx, e.snapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("snapshot %q not found: %w", e.snapshotKey, err)
		}
		return fmt.Errorf("get snapshot %q: %w", e.snapshotKey, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local snapshot: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local snapshot: %w", err)
	}
	return file.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
