// Package postgres runs generated statements against the stock_data table
// in PostgreSQL, one scoped connection per call.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dbpostgres "github.com/Bugs-BugsBunny/TechFin-Bot/internal/database/postgres"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
)

const DefaultApplicationName = "telegram_bot_app"

// Opener returns a fresh handle; the executor closes it after every call.
type Opener func(ctx context.Context) (*sql.DB, error)

type Options struct {
	ApplicationName string
	Logger          *slog.Logger
}

type Executor struct {
	open            Opener
	applicationName string
	logger          *slog.Logger
}

// NewExecutor opens a new pgx handle against dsn for every statement.
func NewExecutor(dsn string, opts Options) *Executor {
	return NewExecutorWithOpener(func(ctx context.Context) (*sql.DB, error) {
		return dbpostgres.Open(ctx, dbpostgres.DBConfig{DSN: dsn, MaxOpenConns: 1})
	}, opts)
}

func NewExecutorWithOpener(open Opener, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	appName := strings.TrimSpace(opts.ApplicationName)
	if appName == "" {
		appName = DefaultApplicationName
	}
	return &Executor{open: open, applicationName: appName, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	result, err := e.execute(ctx, sqlText)
	if err != nil {
		class := query.FailureClass(err)
		observability.ObserveQueryFailure(class)
		e.logger.ErrorContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("class", class),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		return query.Result{}, err
	}
	observability.ObserveQueryRows(len(result.Rows))
	return result, nil
}

func (e *Executor) execute(ctx context.Context, sqlText string) (query.Result, error) {
	statement := query.StripTrailingSemicolons(sqlText)
	if !query.IsReadOnly(statement) {
		return query.Result{}, fmt.Errorf("%w: only read-only SELECT/WITH statements are allowed", query.ErrStatement)
	}
	if e.open == nil {
		return query.Result{}, fmt.Errorf("%w: no database opener configured", query.ErrUnavailable)
	}

	start := time.Now()
	db, err := e.open(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: %w", query.ErrUnavailable, err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: acquire connection: %w", query.ErrUnavailable, err)
	}
	defer func() { _ = conn.Close() }()

	setName := fmt.Sprintf("SET application_name = '%s'", strings.ReplaceAll(e.applicationName, "'", "''"))
	if _, err := conn.ExecContext(ctx, setName); err != nil {
		return query.Result{}, fmt.Errorf("%w: set application name: %w", query.ErrUnavailable, err)
	}
	// stock_data.date holds UTC midnights; date literals must resolve the same way.
	if _, err := conn.ExecContext(ctx, "SET TIME ZONE 'UTC'"); err != nil {
		return query.Result{}, fmt.Errorf("%w: set time zone: %w", query.ErrUnavailable, err)
	}

	rows, err := conn.QueryContext(ctx, statement)
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
