// Package state persists bundle registration records across runs: the
// Applier's Register/Unregister/Save bracket, backed by an embedded
// SQLite database for the lite deployment profile or a shared Postgres
// database for the standard profile where multiple machines' bundle
// registrations are aggregated centrally.
package state

import (
	"context"
	"time"
)

// BundleRecord is one bundle's persisted registration row.
type BundleRecord struct {
	BundleID       string
	RegisteredAt   time.Time
	UnregisteredAt *time.Time
	Suspended      bool
	Variables      []byte
	UpdatedAt      time.Time
}

// Store persists bundle registration state. It satisfies the Applier's
// Registrar interface: Register opens a registration and becomes the
// target of subsequent Save calls on this Store until Unregister (or
// another Register) closes it, mirroring the single-bundle-per-run
// lifecycle the engine drives it through.
type Store interface {
	Register(ctx context.Context, bundleID string) error
	Unregister(ctx context.Context, bundleID string, suspended bool) error
	Save(ctx context.Context, state []byte) error

	// Get returns the persisted record for bundleID, or ok=false if
	// none exists (a related-bundle detection query, or a resumed
	// session looking for prior variable state).
	Get(ctx context.Context, bundleID string) (rec BundleRecord, ok bool, err error)

	Close() error
}
