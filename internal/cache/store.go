// Package cache implements the content-addressed staging area: an
// unverified working directory and a completed directory tree keyed by
// cache id, with move-on-verify semantics and layout-mode support.
package cache

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// PayloadRef describes the payload being staged, enough for verification
// and layout path construction.
type PayloadRef struct {
	Key         string
	RelPath     string
	Size        int64
	Hash        string // hex sha256, empty if verification falls back to catalog or size
	CatalogFile string
}

// Store is the cache root rooted at <cacheRoot>/<bundleId>. Per the
// external interface layout: `<cacheRoot>/<bundleId>/<cacheId>/<relPath>`
// for completed payloads, `<cacheRoot>/.unverified/<uuid>` for staging.
type Store struct {
	cacheRoot string
	bundleID  string
	logger    *slog.Logger

	// verified caches recently verified hashes keyed by payload key and
	// staged file path, so a repeat verify of the same staged file within
	// one run can skip re-hashing large files.
	verified *lru.Cache[string, string]
}

// New creates a Store rooted at cacheRoot for the given bundle id.
func New(cacheRoot, bundleID string, logger *slog.Logger) (*Store, error) {
	verified, err := lru.New[string, string](256)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "create verified-hash cache", err)
	}
	return &Store{
		cacheRoot: cacheRoot,
		bundleID:  bundleID,
		logger:    logger.With("component", "cache"),
		verified:  verified,
	}, nil
}

func (s *Store) unverifiedRoot() string {
	return filepath.Join(s.cacheRoot, ".unverified")
}

func (s *Store) completedRoot() string {
	return filepath.Join(s.cacheRoot, s.bundleID)
}

// NewUnverifiedPath allocates a fresh, unused staging path under
// .unverified for an in-progress acquisition.
func (s *Store) NewUnverifiedPath() (string, error) {
	dir := s.unverifiedRoot()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errkind.Wrap(errkind.IO, "create unverified root", err)
	}
	return filepath.Join(dir, uuid.New().String()), nil
}

// CompletePayload verifies unverifiedPath against ref, then atomically
// places it under completed/{cacheId}/{relPath}. When move is true the
// source file is moved (os.Rename, falling back to copy+remove across
// devices); otherwise it is copied.
func (s *Store) CompletePayload(ref PayloadRef, cacheID, unverifiedPath string, move bool) error {
	if err := s.verify(ref, unverifiedPath); err != nil {
		return err
	}

	dest := filepath.Join(s.completedRoot(), cacheID, ref.RelPath)
	return s.place(unverifiedPath, dest, move)
}

// LayoutPayload verifies unverifiedPath against ref, then places it under
// the caller-specified layoutDir instead of the completed/ area.
func (s *Store) LayoutPayload(ref PayloadRef, layoutDir, unverifiedPath string, move bool) error {
	if err := s.verify(ref, unverifiedPath); err != nil {
		return err
	}
	dest := filepath.Join(layoutDir, ref.RelPath)
	return s.place(unverifiedPath, dest, move)
}

// LayoutBundle places the bundle executable itself under layoutDir,
// without verification (the bundle executable authenticates itself by
// having been run at all).
func (s *Store) LayoutBundle(exeName, layoutDir, unverifiedPath string) error {
	dest := filepath.Join(layoutDir, exeName)
	return s.place(unverifiedPath, dest, false)
}

func (s *Store) place(src, dest string, move bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errkind.Wrap(errkind.IO, "create destination directory", err)
	}

	// Clear read-only bits on an existing destination so repeat runs
	// don't fail with access-denied.
	if info, err := os.Stat(dest); err == nil {
		os.Chmod(dest, info.Mode()|0o200)
	}

	if move {
		if err := os.Rename(src, dest); err == nil {
			return nil
		}
		// Fall through to copy+remove for cross-device renames.
	}

	if err := copyFile(src, dest); err != nil {
		return errkind.Wrap(errkind.IO, "copy payload into place", err)
	}
	if move {
		os.Remove(src)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// RemovePackage deletes the completed/{cacheId} directory entirely.
func (s *Store) RemovePackage(cacheID string) error {
	dir := filepath.Join(s.completedRoot(), cacheID)
	if err := os.RemoveAll(dir); err != nil {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("remove cache package %s", cacheID), err)
	}
	return nil
}

// Cleanup removes the entire bundle's completed tree. Staging entries
// under `<cacheRoot>/.unverified`, which all bundles share, are left in
// place.
func (s *Store) Cleanup() error {
	if err := os.RemoveAll(s.completedRoot()); err != nil {
		return errkind.Wrap(errkind.IO, "remove completed cache tree", err)
	}
	return nil
}

// CompletedPath returns the final on-disk path for a cached payload,
// whether or not it currently exists.
func (s *Store) CompletedPath(cacheID, relPath string) string {
	return filepath.Join(s.completedRoot(), cacheID, relPath)
}
