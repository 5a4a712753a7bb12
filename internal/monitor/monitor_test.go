package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitor_CoalescesBurstIntoOneNotification(t *testing.T) {
	dir := t.TempDir()
	m, err := New(150*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, m.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	write("a")
	time.Sleep(40 * time.Millisecond)
	write("b")
	time.Sleep(40 * time.Millisecond)
	write("c")

	select {
	case n := <-m.Notifications():
		require.NotEmpty(t, n.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected exactly one coalesced notification before timeout")
	}

	select {
	case n := <-m.Notifications():
		t.Fatalf("unexpected second notification %v before a new burst", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMonitor_SecondBurstAfterSilenceProducesSecondNotification(t *testing.T) {
	dir := t.TempDir()
	m, err := New(100*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, m.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "first"), []byte("x"), 0o644))

	select {
	case <-m.Notifications():
	case <-time.After(2 * time.Second):
		t.Fatal("expected first notification")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "second"), []byte("x"), 0o644))

	select {
	case <-m.Notifications():
	case <-time.After(2 * time.Second):
		t.Fatal("expected second notification after a fresh burst")
	}
}
