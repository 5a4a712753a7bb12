// Package logger provides the structured logging used across the engine,
// the C9 UX dashboard server, and the migrate CLI. It wraps slog with the
// rotation and correlation-ID conventions the rest of chainboot expects.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys carried alongside a dashboard
// request or a running bundle.
type ContextKey string

const (
	// ConnectionIDKey is the context key for the dashboard HTTP/websocket
	// connection ID assigned by LoggingMiddleware.
	ConnectionIDKey ContextKey = "conn_id"

	// BundleIDKey is the context key for the bundle ID of the run a log
	// line belongs to, set via WithBundleID.
	BundleIDKey ContextKey = "bundle_id"
)

// Config holds logger configuration. Filename/MaxSize/MaxBackups/MaxAge/
// Compress only apply when Output is "file", rotating through lumberjack
// the way the engine's own run logs under the cache root do.
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogger creates a new structured logger based on configuration. It is
// used both for the engine's own run log and for the UX dashboard server's
// access log.
func NewLogger(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupWriter configures the output writer based on configuration. "file"
// rotates the engine's run log alongside the bundle's cache directory so a
// long-running elevated install doesn't grow an unbounded log on disk.
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		return os.Stdout
	}
}

// GenerateConnectionID generates a correlation ID for a single dashboard
// HTTP request or websocket upgrade.
func GenerateConnectionID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID if random fails
		return fmt.Sprintf("conn_%d", time.Now().UnixNano())
	}
	return "conn_" + hex.EncodeToString(bytes)
}

// WithConnectionID adds a dashboard connection ID to context.
func WithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, connID)
}

// ConnectionIDFromContext extracts a dashboard connection ID from context.
func ConnectionIDFromContext(ctx context.Context) string {
	if connID, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return connID
	}
	return ""
}

// WithBundleID tags a context with the bundle ID of the run in progress, so
// a logger built from it by FromContext carries the ID. The UX server's
// websocket handler is the one caller; the planner, cache and applier do
// not log through such a context.
func WithBundleID(ctx context.Context, bundleID string) context.Context {
	return context.WithValue(ctx, BundleIDKey, bundleID)
}

// BundleIDFromContext extracts the bundle ID set by WithBundleID, if any.
func BundleIDFromContext(ctx context.Context) string {
	if bundleID, ok := ctx.Value(BundleIDKey).(string); ok {
		return bundleID
	}
	return ""
}

// LoggingMiddleware returns HTTP middleware that logs requests against the
// UX dashboard server (the health endpoint and the websocket upgrade).
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Generate a connection ID if the dashboard client didn't supply one
			connID := r.Header.Get("X-Connection-ID")
			if connID == "" {
				connID = GenerateConnectionID()
			}

			// Add connection ID to context
			ctx := WithConnectionID(r.Context(), connID)
			r = r.WithContext(ctx)

			// Echo the connection ID back so a dashboard client can correlate
			// its own logs with the server's
			w.Header().Set("X-Connection-ID", connID)

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Process request
			next.ServeHTTP(wrapped, r)

			// Log request
			duration := time.Since(start)
			logger.Info("dashboard request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", duration,
				"conn_id", connID,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// FromContext creates a logger carrying the dashboard connection ID and
// bundle ID found in ctx, if any were set.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if connID := ConnectionIDFromContext(ctx); connID != "" {
		logger = logger.With("conn_id", connID)
	}
	if bundleID := BundleIDFromContext(ctx); bundleID != "" {
		logger = logger.With("bundle_id", bundleID)
	}
	return logger
}
