// Package config loads the engine's operational configuration: cache
// root, retry ceilings, network timeouts, the monitor's silence window,
// the deployment profile governing which state backend internal/state
// opens, and the UX server's bind address.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DeploymentProfile selects the persisted-state backend: an embedded,
// no-dependency store for a single machine, or a shared Postgres store
// for multi-machine aggregation of bundle registrations.
type DeploymentProfile string

const (
	// ProfileLite uses the embedded SQLite state store. No external
	// dependencies; the default for a standalone bootstrapper.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard uses a shared PostgreSQL state store so multiple
	// machines' bundle registrations can be aggregated centrally.
	ProfileStandard DeploymentProfile = "standard"
)

// EngineConfig is the engine's full operational configuration.
type EngineConfig struct {
	Profile DeploymentProfile `mapstructure:"profile"`

	Bundle  BundleConfig  `mapstructure:"bundle"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Acquire AcquireConfig `mapstructure:"acquire"`
	State   StateConfig   `mapstructure:"state"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	UX      UXConfig      `mapstructure:"ux"`
	Log     LogConfig     `mapstructure:"log"`
	RunLock RunLockConfig `mapstructure:"run_lock"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// BundleConfig locates the manifest this engine instance chains and
// names it for the variable store's WixBundleName/WixBundleVersion
// built-ins. A real Burn bootstrapper burns its manifest into the exe's
// own resources; this engine instead reads it from a path next to the
// binary (or wherever the operator points it), since Go has no
// equivalent resource-section convention.
type BundleConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	Name         string `mapstructure:"name"`
	Version      string `mapstructure:"version"`
}

// CacheConfig controls the package cache store.
type CacheConfig struct {
	Root                      string `mapstructure:"root"`
	MaxVerifyTryAgainAttempts int    `mapstructure:"max_verify_try_again_attempts"`
}

// AcquireConfig controls container/payload download behavior.
type AcquireConfig struct {
	OriginalSourceDir string        `mapstructure:"original_source_dir"`
	BytesPerSecond    int           `mapstructure:"bytes_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// StateConfig selects and configures the persisted-state backend.
type StateConfig struct {
	// SQLitePath is the database file for ProfileLite.
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgresDSN is the connection string for ProfileStandard.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	MigrationsTimeout time.Duration `mapstructure:"migrations_timeout"`
}

// MonitorConfig controls the filesystem silence-window coalescer.
type MonitorConfig struct {
	SilenceWindow time.Duration `mapstructure:"silence_window"`
}

// UXConfig controls the dashboard/websocket HTTP surface.
type UXConfig struct {
	BindAddr string `mapstructure:"bind_addr"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// RunLockConfig controls the cross-process single-writer lock guarding
// the UX host's Activate/Deactivate bracket on multi-instance machines.
type RunLockConfig struct {
	RedisAddr      string        `mapstructure:"redis_addr"`
	Key            string        `mapstructure:"key"`
	TTL            time.Duration `mapstructure:"ttl"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// MetricsConfig controls the engine's internal Prometheus registry.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from built-in defaults, then configPath (if
// non-empty and present), then environment variables, each layer
// overriding the one before it.
func Load(configPath string) (*EngineConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("CHAINBOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "lite")

	v.SetDefault("bundle.manifest_path", "manifest.xml")
	v.SetDefault("bundle.name", "chainboot")
	v.SetDefault("bundle.version", "0.0.0")

	v.SetDefault("cache.root", "")
	v.SetDefault("cache.max_verify_try_again_attempts", 2)

	v.SetDefault("acquire.original_source_dir", "")
	v.SetDefault("acquire.bytes_per_second", 0)
	v.SetDefault("acquire.timeout", "30m")

	v.SetDefault("state.sqlite_path", "chainboot-state.db")
	v.SetDefault("state.postgres_dsn", "")
	v.SetDefault("state.migrations_timeout", "30s")

	v.SetDefault("monitor.silence_window", "500ms")

	v.SetDefault("ux.bind_addr", "127.0.0.1:8087")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("run_lock.redis_addr", "")
	v.SetDefault("run_lock.key", "chainboot:runlock")
	v.SetDefault("run_lock.ttl", "30s")
	v.SetDefault("run_lock.acquire_timeout", "5s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the profile-dependent invariants: a standard-profile
// engine needs a Postgres DSN, a lite-profile engine needs a SQLite path.
func (c *EngineConfig) Validate() error {
	switch c.Profile {
	case ProfileLite:
		if c.State.SQLitePath == "" {
			return fmt.Errorf("lite profile requires state.sqlite_path")
		}
	case ProfileStandard:
		if c.State.PostgresDSN == "" {
			return fmt.Errorf("standard profile requires state.postgres_dsn")
		}
	default:
		return fmt.Errorf("invalid deployment profile %q (must be %q or %q)", c.Profile, ProfileLite, ProfileStandard)
	}

	if c.Cache.MaxVerifyTryAgainAttempts < 0 {
		return fmt.Errorf("cache.max_verify_try_again_attempts cannot be negative")
	}

	return nil
}

// IsLiteProfile reports whether the engine is configured for the
// embedded SQLite state store.
func (c *EngineConfig) IsLiteProfile() bool {
	return c.Profile == ProfileLite
}

// IsStandardProfile reports whether the engine is configured for the
// shared Postgres state store.
func (c *EngineConfig) IsStandardProfile() bool {
	return c.Profile == ProfileStandard
}
