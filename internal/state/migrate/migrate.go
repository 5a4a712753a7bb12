// Package migrate applies the bundle-registration schema to either
// state backend via goose, migrating from embedded SQL files so the
// binary carries its own schema instead of depending on a file layout
// relative to the working directory.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used only for migrations
)

// OpenPostgresDB opens a database/sql connection against dsn using the
// pgx stdlib driver. The pool used for normal operation is pgxpool
// (see PostgresStore); goose needs a *sql.DB, so migrations get their
// own short-lived connection.
func OpenPostgresDB(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Dialect is a goose SQL dialect name paired with its embedded
// migration directory.
type Dialect struct {
	Name string
	fsys embed.FS
	dir  string
}

var (
	SQLite   = Dialect{Name: "sqlite3", fsys: sqliteFS, dir: "sqlite"}
	Postgres = Dialect{Name: "postgres", fsys: postgresFS, dir: "postgres"}
)

// Up applies all pending migrations for the dialect to db.
func Up(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := goose.SetDialect(d.Name); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", d.Name, err)
	}
	goose.SetBaseFS(d.fsys)
	defer goose.SetBaseFS(nil)

	logger.Info("applying state store migrations", "dialect", d.Name)
	if err := goose.UpContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Down rolls back steps migrations for the dialect.
func Down(ctx context.Context, db *sql.DB, d Dialect, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := goose.SetDialect(d.Name); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", d.Name, err)
	}
	goose.SetBaseFS(d.fsys)
	defer goose.SetBaseFS(nil)

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	target := current - int64(steps)
	if target < 0 {
		target = 0
	}

	logger.Info("rolling back state store migrations", "dialect", d.Name, "steps", steps, "target_version", target)
	if err := goose.DownToContext(ctx, db, d.dir, target); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

// Status prints the applied/pending migration status for the dialect.
func Status(ctx context.Context, db *sql.DB, d Dialect) error {
	if err := goose.SetDialect(d.Name); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", d.Name, err)
	}
	goose.SetBaseFS(d.fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.StatusContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}
