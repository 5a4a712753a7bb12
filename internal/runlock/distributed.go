// Package runlock provides the cross-process single-writer lock that
// guards the UX host's Activate/Deactivate bracket when more than one
// bootstrapper instance for the same bundle might run on a machine at
// once (a per-machine install racing a per-user repair, for instance).
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is a Redis-backed mutual-exclusion lock scoped to one bundle id.
type RunLock struct {
	redis    *redis.Client
	key      string
	value    string
	ttl      time.Duration
	logger   *slog.Logger
	acquired bool
}

// Config configures a RunLock.
type Config struct {
	// TTL bounds how long a held lock survives without renewal, so a
	// crashed holder does not wedge the bundle forever.
	TTL time.Duration

	MaxRetries    int
	RetryInterval time.Duration

	AcquireTimeout time.Duration
	ReleaseTimeout time.Duration

	ValuePrefix string
}

// DefaultConfig returns sensible defaults: a 30s TTL with 3 retries at a
// 100ms base interval.
func DefaultConfig() *Config {
	return &Config{
		TTL:            30 * time.Second,
		MaxRetries:     3,
		RetryInterval:  100 * time.Millisecond,
		AcquireTimeout: 5 * time.Second,
		ReleaseTimeout: 2 * time.Second,
		ValuePrefix:    "chainboot-run",
	}
}

// New creates a RunLock scoped to key (typically `run:<bundleId>`).
func New(redisClient *redis.Client, key string, config *Config, logger *slog.Logger) *RunLock {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunLock{
		redis:  redisClient,
		key:    key,
		value:  generateLockValue(config.ValuePrefix),
		ttl:    config.TTL,
		logger: logger,
	}
}

func generateLockValue(prefix string) string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(bytes))
}

// Acquire attempts to take the lock using the default retry count.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	return l.AcquireWithRetry(ctx, 0)
}

// AcquireWithRetry attempts to take the lock, retrying up to maxRetries
// times on contention or transient Redis errors.
func (l *RunLock) AcquireWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	l.logger.Debug("attempting to acquire run lock", "key", l.key, "ttl", l.ttl)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, l.ttl)
		result, err := l.redis.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
		cancel()

		if err != nil {
			l.logger.Error("failed to acquire run lock", "key", l.key, "attempt", attempt+1, "error", err)
			if attempt == maxRetries {
				return false, fmt.Errorf("acquire run lock after %d attempts: %w", maxRetries+1, err)
			}
			if !sleepCtx(ctx, retryInterval(attempt)) {
				return false, ctx.Err()
			}
			continue
		}

		if result {
			l.acquired = true
			l.logger.Info("run lock acquired", "key", l.key, "ttl", l.ttl)
			return true, nil
		}

		l.logger.Debug("run lock already held", "key", l.key, "attempt", attempt+1)
		if attempt == maxRetries {
			return false, nil
		}
		if !sleepCtx(ctx, retryInterval(attempt)) {
			return false, ctx.Err()
		}
	}

	return false, nil
}

// Release drops the lock if and only if this holder still owns it.
func (l *RunLock) Release(ctx context.Context) error {
	if !l.acquired {
		l.logger.Warn("releasing a run lock that was never acquired", "key", l.key)
		return nil
	}

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	releaseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(releaseCtx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}

	if result.(int64) == 1 {
		l.acquired = false
		l.logger.Info("run lock released", "key", l.key)
		return nil
	}

	l.logger.Warn("run lock was not released (already expired or stolen)", "key", l.key)
	return nil
}

// Extend renews the lock's TTL; used by a long-running Apply to keep the
// lock alive past the original TTL.
func (l *RunLock) Extend(ctx context.Context, newTTL time.Duration) error {
	if !l.acquired {
		return fmt.Errorf("cannot extend a run lock that was not acquired")
	}

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("expire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	extendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(extendCtx, script, []string{l.key}, l.value, int(newTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("extend run lock: %w", err)
	}

	if result.(int64) == 1 {
		l.ttl = newTTL
		return nil
	}
	return fmt.Errorf("run lock was not extended (already expired or stolen)")
}

// IsAcquired reports whether this holder currently owns the lock.
func (l *RunLock) IsAcquired() bool {
	return l.acquired
}

func retryInterval(attempt int) time.Duration {
	base := 100 * time.Millisecond
	interval := time.Duration(attempt+1) * base
	jitter := time.Duration(float64(interval) * 0.25 * (2*float64(time.Now().UnixNano()%1000)/1000 - 1))
	return interval + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Manager tracks multiple RunLocks, one per bundle id, for a host process
// that may bracket several bundles concurrently.
type Manager struct {
	redis  *redis.Client
	config *Config
	logger *slog.Logger
	locks  map[string]*RunLock
}

// NewManager creates a Manager.
func NewManager(redisClient *redis.Client, config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		redis:  redisClient,
		config: config,
		logger: logger,
		locks:  make(map[string]*RunLock),
	}
}

// AcquireForBundle acquires (and tracks) the run lock for bundleID.
func (m *Manager) AcquireForBundle(ctx context.Context, bundleID string) (*RunLock, error) {
	key := "chainboot:run:" + bundleID
	lock := New(m.redis, key, m.config, m.logger)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another instance already holds the run lock for bundle %s", bundleID)
	}

	m.locks[bundleID] = lock
	return lock, nil
}

// ReleaseForBundle releases the tracked lock for bundleID, if any.
func (m *Manager) ReleaseForBundle(ctx context.Context, bundleID string) error {
	lock, ok := m.locks[bundleID]
	if !ok {
		return nil
	}
	if err := lock.Release(ctx); err != nil {
		return err
	}
	delete(m.locks, bundleID)
	return nil
}

// ReleaseAll releases every lock this manager currently tracks.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	var lastErr error
	for bundleID, lock := range m.locks {
		if err := lock.Release(ctx); err != nil {
			m.logger.Error("failed to release run lock", "bundle_id", bundleID, "error", err)
			lastErr = err
		}
	}
	m.locks = make(map[string]*RunLock)
	return lastErr
}
