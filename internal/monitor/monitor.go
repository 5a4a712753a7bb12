// Package monitor watches filesystem paths and coalesces bursts of
// change notifications into a single event once a silence window has
// elapsed, the way a Mon-style coordinator thread folds repeated
// registry/file writes into one settle signal instead of one per write.
package monitor

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Notification reports that path has been quiet for the configured
// silence window after at least one change event.
type Notification struct {
	Path string
	At   time.Time
}

// Monitor coalesces fsnotify events per watched directory into one
// Notification per silence window, mirroring the teacher's worker-pool
// shape: one background goroutine serving every watched directory, a stop
// channel, and a WaitGroup-guarded graceful Stop.
type Monitor struct {
	watcher *fsnotify.Watcher
	silence time.Duration
	logger  *slog.Logger

	notifications chan Notification

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a Monitor with the given coalescing silence window.
func New(silence time.Duration, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "create filesystem watcher", err)
	}
	return &Monitor{
		watcher:       w,
		silence:       silence,
		logger:        logger.With("component", "monitor"),
		notifications: make(chan Notification, 16),
		stopChan:      make(chan struct{}),
	}, nil
}

// Watch registers dir for change notifications.
func (m *Monitor) Watch(dir string) error {
	if err := m.watcher.Add(dir); err != nil {
		return errkind.Wrap(errkind.IO, "watch directory "+dir, err)
	}
	return nil
}

// Notifications returns the channel coalesced silence-window events are
// delivered on.
func (m *Monitor) Notifications() <-chan Notification {
	return m.notifications
}

// Start begins coalescing events until ctx is done or Stop is called.
// Safe to call once; subsequent calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop closes the underlying watcher and waits for the coalescing
// goroutine to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	err := m.watcher.Close()
	m.wg.Wait()
	close(m.notifications)
	if err != nil {
		return errkind.Wrap(errkind.IO, "close filesystem watcher", err)
	}
	return nil
}

// loop resets a per-directory silence timer on every event for a file in
// that directory and fires a Notification for the directory once the
// timer elapses without interruption.
func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	timers := make(map[string]*time.Timer)
	fired := make(chan string, 16)

	for {
		select {
		case <-ctx.Done():
			stopAll(timers)
			return
		case <-m.stopChan:
			stopAll(timers)
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				stopAll(timers)
				return
			}
			path := filepath.Dir(event.Name)
			if t, exists := timers[path]; exists {
				t.Reset(m.silence)
				continue
			}
			timers[path] = time.AfterFunc(m.silence, func() { fired <- path })

		case path := <-fired:
			delete(timers, path)
			select {
			case m.notifications <- Notification{Path: path, At: time.Now()}:
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				stopAll(timers)
				return
			}
			m.logger.Warn("filesystem watch error", "error", err)
		}
	}
}

func stopAll(timers map[string]*time.Timer) {
	for _, t := range timers {
		t.Stop()
	}
}
