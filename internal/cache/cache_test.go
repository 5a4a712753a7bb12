package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(root, "bundle1", slog.Default())
	require.NoError(t, err)
	return s, root
}

func writeStagedFile(t *testing.T, s *Store, content string) string {
	t.Helper()
	path, err := s.NewUnverifiedPath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompletePayload_HashVerified(t *testing.T) {
	s, root := newTestStore(t)
	content := "payload-bytes"
	path := writeStagedFile(t, s, content)

	sum := sha256.Sum256([]byte(content))
	ref := PayloadRef{Key: "L1", RelPath: "setup.msi", Hash: hex.EncodeToString(sum[:])}

	require.NoError(t, s.CompletePayload(ref, "cacheA", path, true))

	dest := filepath.Join(root, "bundle1", "cacheA", "setup.msi")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, content, string(data))
}

func TestCompletePayload_HashMismatchFails(t *testing.T) {
	s, _ := newTestStore(t)
	path := writeStagedFile(t, s, "actual-content")

	ref := PayloadRef{Key: "L1", RelPath: "setup.msi", Hash: "deadbeef"}
	err := s.CompletePayload(ref, "cacheA", path, true)
	require.Error(t, err)
}

func TestCompletePayload_SizeFallback(t *testing.T) {
	s, root := newTestStore(t)
	content := "12345"
	path := writeStagedFile(t, s, content)

	ref := PayloadRef{Key: "L1", RelPath: "setup.msi", Size: int64(len(content))}
	require.NoError(t, s.CompletePayload(ref, "cacheA", path, true))

	dest := filepath.Join(root, "bundle1", "cacheA", "setup.msi")
	_, err := os.Stat(dest)
	require.NoError(t, err)
}

func TestLayoutPayload_PlacesUnderLayoutDir(t *testing.T) {
	s, _ := newTestStore(t)
	layoutDir := t.TempDir()
	content := "layout-bytes"
	path := writeStagedFile(t, s, content)

	ref := PayloadRef{Key: "L1", RelPath: "nested/setup.msi", Size: int64(len(content))}
	require.NoError(t, s.LayoutPayload(ref, layoutDir, path, true))

	data, err := os.ReadFile(filepath.Join(layoutDir, "nested", "setup.msi"))
	require.NoError(t, err)
	require.Equal(t, content, string(data))
}

func TestRemovePackage_DeletesCacheIDDirectory(t *testing.T) {
	s, root := newTestStore(t)
	content := "x"
	path := writeStagedFile(t, s, content)
	ref := PayloadRef{Key: "L1", RelPath: "f.bin", Size: 1}
	require.NoError(t, s.CompletePayload(ref, "cacheB", path, true))

	require.NoError(t, s.RemovePackage("cacheB"))
	_, err := os.Stat(filepath.Join(root, "bundle1", "cacheB"))
	require.True(t, os.IsNotExist(err))
}
