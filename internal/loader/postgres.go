package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
)

// CreateTableSQL builds the idempotent DDL for the dataset's columns.
func CreateTableSQL(table string, columns []string) string {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(col), ColumnType(col)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

// InsertSQL builds a positional INSERT for one row of columns.
func InsertSQL(table string, columns []string) string {
	names := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for i, col := range columns {
		names = append(names, quoteIdent(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
}

// LoadPostgres creates stock_data when absent and inserts every row inside a
// single transaction. Nothing is written for an empty dataset.
func LoadPostgres(ctx context.Context, db *sql.DB, ds Dataset) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database handle is required")
	}
	if len(ds.Rows) == 0 {
		return 0, ErrNoRows
	}
	if _, err := db.ExecContext(ctx, CreateTableSQL(schema.TableName, ds.Columns)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", schema.TableName, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, InsertSQL(schema.TableName, ds.Columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for i, row := range ds.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i+1, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load transaction: %w", err)
	}
	return inserted, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
