package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// SQLiteStore is the lite-profile Store: a single embedded database
// file, WAL mode for concurrent reads during writes, no external
// dependencies.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu           sync.Mutex
	activeBundle string
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at
// path and ensures its parent directory exists.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errkind.New(errkind.Validation, "sqlite state path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errkind.Wrap(errkind.IO, "create state directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "open sqlite state store", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.IO, "ping sqlite state store", err)
	}

	return &SQLiteStore{db: db, logger: logger.With("component", "state", "backend", "sqlite")}, nil
}

func (s *SQLiteStore) Register(ctx context.Context, bundleID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bundles (bundle_id, registered_at, suspended, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(bundle_id) DO UPDATE SET
			registered_at = excluded.registered_at,
			unregistered_at = NULL,
			suspended = 0,
			updated_at = excluded.updated_at
	`, bundleID, now, now)
	if err != nil {
		return errkind.Wrap(errkind.IO, "register bundle "+bundleID, err)
	}

	s.mu.Lock()
	s.activeBundle = bundleID
	s.mu.Unlock()

	s.logger.Debug("bundle registered", "bundle_id", bundleID)
	return nil
}

func (s *SQLiteStore) Unregister(ctx context.Context, bundleID string, suspended bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE bundles SET unregistered_at = ?, suspended = ?, updated_at = ?
		WHERE bundle_id = ?
	`, now, suspended, now, bundleID)
	if err != nil {
		return errkind.Wrap(errkind.IO, "unregister bundle "+bundleID, err)
	}

	s.mu.Lock()
	if s.activeBundle == bundleID {
		s.activeBundle = ""
	}
	s.mu.Unlock()

	s.logger.Debug("bundle unregistered", "bundle_id", bundleID, "suspended", suspended)
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	bundleID := s.activeBundle
	s.mu.Unlock()

	if bundleID == "" {
		return errkind.New(errkind.Fatal, "save called with no active registered bundle")
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bundles SET variables = ?, updated_at = ? WHERE bundle_id = ?
	`, data, time.Now().UTC(), bundleID)
	if err != nil {
		return errkind.Wrap(errkind.IO, "save bundle variables "+bundleID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, bundleID string) (BundleRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bundle_id, registered_at, unregistered_at, suspended, variables, updated_at
		FROM bundles WHERE bundle_id = ?
	`, bundleID)

	var rec BundleRecord
	var unregisteredAt sql.NullTime
	if err := row.Scan(&rec.BundleID, &rec.RegisteredAt, &unregisteredAt, &rec.Suspended, &rec.Variables, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return BundleRecord{}, false, nil
		}
		return BundleRecord{}, false, errkind.Wrap(errkind.IO, "load bundle "+bundleID, err)
	}
	if unregisteredAt.Valid {
		rec.UnregisteredAt = &unregisteredAt.Time
	}
	return rec, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for the migration runner.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
