// Package migrations applies the embedded SQL files that create the bot's
// operational tables. stock_data itself is owned by the loader.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "techfin_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// NewRunnerFS reads migrations from the sql/ directory of fsys.
func NewRunnerFS(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys}
}

// Status reports which known versions are applied and which are pending.
type Status struct {
	Applied []int64
	Pending []int64
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return Status{}, err
	}
	var status Status
	for _, m := range known {
		if applied[m.Version] {
			status.Applied = append(status.Applied, m.Version)
		} else {
			status.Pending = append(status.Pending, m.Version)
		}
	}
	return status, nil
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, m := range known {
		if applied[m.Version] {
			continue
		}
		if steps > 0 && done == steps {
			break
		}
		record := fmt.Sprintf(`INSERT INTO %s (version, name) VALUES ($1, $2)`, migrationTable)
		if err := runStep(ctx, db, m, m.UpSQL, record, m.Version, m.Name); err != nil {
			return done, fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		done++
	}
	return done, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	known, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	for version := range applied {
		if !slices.ContainsFunc(known, func(m migration) bool { return m.Version == version }) {
			return 0, fmt.Errorf("applied migration %d is missing from source", version)
		}
	}
	done := 0
	for _, m := range slices.Backward(known) {
		if done == steps {
			break
		}
		if !applied[m.Version] {
			continue
		}
		record := fmt.Sprintf(`DELETE FROM %s WHERE version = $1`, migrationTable)
		if err := runStep(ctx, db, m, m.DownSQL, record, m.Version); err != nil {
			return done, fmt.Errorf("roll back migration %d: %w", m.Version, err)
		}
		done++
	}
	return done, nil
}

// prepare loads the source migrations and the set of applied versions,
// creating the tracking table on first use.
func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]migration, map[int64]bool, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	createTable := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version    BIGINT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable)
	if err != nil {
		return nil, nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	applied := map[int64]bool{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("scan version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read applied versions: %w", err)
	}
	return known, applied, nil
}

// runStep executes one script and its bookkeeping statement in a single
// transaction.
func runStep(ctx context.Context, db *sql.DB, m migration, script, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		match := fileNamePattern.FindStringSubmatch(path.Base(file))
		if match == nil {
			continue
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", file, err)
		}
		script, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: match[2]}
			byVersion[version] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, m.Name, match[2])
		}
		if match[3] == "up" {
			m.UpSQL = string(script)
		} else {
			m.DownSQL = string(script)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", m.Version)
		}
		if strings.TrimSpace(m.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}
