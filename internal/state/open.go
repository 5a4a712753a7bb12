package state

import (
	"context"
	"log/slog"

	"github.com/vitaliisemenov/chainboot/internal/config"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Open opens the Store backend selected by cfg.Profile.
func Open(ctx context.Context, cfg *config.EngineConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Profile {
	case config.ProfileLite:
		return NewSQLiteStore(ctx, cfg.State.SQLitePath, logger)
	case config.ProfileStandard:
		return NewPostgresStore(ctx, cfg.State.PostgresDSN, logger)
	default:
		return nil, errkind.New(errkind.Validation, "unknown deployment profile "+string(cfg.Profile))
	}
}
