package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireToUnverified_LocalCopy(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	a := New(Config{})
	dest := filepath.Join(dir, "dest.bin")

	var lastCumulative int64
	err := a.AcquireToUnverified(context.Background(), Source{Key: "L1", LocalPath: srcPath}, dest, func(fileBytes, cumulative int64) bool {
		lastCumulative = cumulative
		return true
	})
	require.NoError(t, err)
	require.EqualValues(t, 5, lastCumulative)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestAcquireToUnverified_RelativeResolvesAgainstOriginalSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.bin"), []byte("data"), 0o644))

	a := New(Config{OriginalSourceDir: dir})
	dest := filepath.Join(t.TempDir(), "dest.bin")

	err := a.AcquireToUnverified(context.Background(), Source{Key: "L1", RelativePath: "nested.bin"}, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "data", string(data))
}

func TestAcquireToUnverified_HTTPDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	a := New(Config{})
	dest := filepath.Join(t.TempDir(), "dest.bin")

	err := a.AcquireToUnverified(context.Background(), Source{Key: "L1", DownloadURL: srv.URL}, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "remote-bytes", string(data))
}

func TestAcquireToUnverified_MissingSourceWithoutResolverFails(t *testing.T) {
	a := New(Config{})
	dest := filepath.Join(t.TempDir(), "dest.bin")

	err := a.AcquireToUnverified(context.Background(), Source{Key: "L1", LocalPath: "/does/not/exist"}, dest, nil)
	require.Error(t, err)
}

func TestAcquireToUnverified_CancelViaProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1<<20))
	}))
	defer srv.Close()

	a := New(Config{})
	dest := filepath.Join(t.TempDir(), "dest.bin")

	err := a.AcquireToUnverified(context.Background(), Source{Key: "L1", DownloadURL: srv.URL}, dest, func(fileBytes, cumulative int64) bool {
		return false
	})
	require.Error(t, err)
}
