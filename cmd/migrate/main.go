// Package main runs the persisted-state store's schema migrations
// against whichever backend the engine's deployment profile selects.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/vitaliisemenov/chainboot/internal/config"
	"github.com/vitaliisemenov/chainboot/internal/state/migrate"
	"github.com/vitaliisemenov/chainboot/pkg/logger"

	_ "modernc.org/sqlite"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down, status")
	steps := flag.Int("steps", 1, "number of versions to roll back (down only)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CHAINBOOT_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: load config: "+err.Error())
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})

	db, dialect, err := openForProfile(cfg)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.State.MigrationsTimeout)
	defer cancel()

	if err := runCommand(ctx, db, dialect, *command, *steps, log); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}

func openForProfile(cfg *config.EngineConfig) (*sql.DB, migrate.Dialect, error) {
	switch cfg.Profile {
	case config.ProfileLite:
		db, err := sql.Open("sqlite", cfg.State.SQLitePath)
		return db, migrate.SQLite, err
	case config.ProfileStandard:
		db, err := migrate.OpenPostgresDB(cfg.State.PostgresDSN)
		return db, migrate.Postgres, err
	default:
		return nil, migrate.Dialect{}, fmt.Errorf("unknown deployment profile %q", cfg.Profile)
	}
}

func runCommand(ctx context.Context, db *sql.DB, dialect migrate.Dialect, command string, steps int, log *slog.Logger) error {
	switch command {
	case "up":
		return migrate.Up(ctx, db, dialect, log)
	case "down":
		return migrate.Down(ctx, db, dialect, steps, log)
	case "status":
		return migrate.Status(ctx, db, dialect)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down, or status)", command)
	}
}
