package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// PostgresStore is the standard-profile Store: a shared database so
// bundle registrations across machines can be aggregated centrally.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu           sync.Mutex
	activeBundle string
}

// NewPostgresStore connects to dsn and returns a ready PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return nil, errkind.New(errkind.Validation, "postgres state dsn cannot be empty")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "parse postgres dsn", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "connect postgres state store", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errkind.Wrap(errkind.IO, "ping postgres state store", err)
	}

	return &PostgresStore{pool: pool, logger: logger.With("component", "state", "backend", "postgres")}, nil
}

func (s *PostgresStore) Register(ctx context.Context, bundleID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bundles (bundle_id, registered_at, suspended, updated_at)
		VALUES ($1, $2, false, $3)
		ON CONFLICT (bundle_id) DO UPDATE SET
			registered_at = EXCLUDED.registered_at,
			unregistered_at = NULL,
			suspended = false,
			updated_at = EXCLUDED.updated_at
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

func (s *PostgresStore) Unregister(ctx context.Context, bundleID string, suspended bool) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE bundles SET unregistered_at = $1, suspended = $2, updated_at = $3
		WHERE bundle_id = $4
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

func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	bundleID := s.activeBundle
	s.mu.Unlock()

	if bundleID == "" {
		return errkind.New(errkind.Fatal, "save called with no active registered bundle")
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE bundles SET variables = $1, updated_at = $2 WHERE bundle_id = $3
	`, data, time.Now().UTC(), bundleID)
	if err != nil {
		return errkind.Wrap(errkind.IO, "save bundle variables "+bundleID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, bundleID string) (BundleRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT bundle_id, registered_at, unregistered_at, suspended, variables, updated_at
		FROM bundles WHERE bundle_id = $1
	`, bundleID)

	var rec BundleRecord
	var unregisteredAt *time.Time
	if err := row.Scan(&rec.BundleID, &rec.RegisteredAt, &unregisteredAt, &rec.Suspended, &rec.Variables, &rec.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return BundleRecord{}, false, nil
		}
		return BundleRecord{}, false, errkind.Wrap(errkind.IO, "load bundle "+bundleID, err)
	}
	rec.UnregisteredAt = unregisteredAt
	return rec, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for the migration runner.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}
