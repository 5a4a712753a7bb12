// Package acquire resolves and fetches one container or payload's bytes
// into the cache store's unverified staging area: a local copy when the
// source path (absolute, or relative to the original source directory)
// exists, else an HTTP download from the source's URL, else a UX-mediated
// resolution that may supply a URL. A bits:/bitss: URL is fetched over
// https by the same HTTP client; there is no separate background-transfer
// fetcher.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/resilience"
)

// ProgressFunc reports the bytes moved by the latest chunk (fileBytes)
// and the running total for the current file (cumulativeBytes), and
// returns false to request cooperative cancellation (the UX returned
// Cancel/Abort/No). No bundle-wide total is tracked.
type ProgressFunc func(fileBytes, cumulativeBytes int64) bool

// ResolveDecision is the UX's answer to OnResolveSource.
type ResolveDecision int

const (
	ResolveNone ResolveDecision = iota
	ResolveDownload
	ResolveRetry
	ResolveCancel
)

// ResolveSourceFunc asks the UX to resolve a missing source, optionally
// returning a replacement URL when the decision is ResolveDownload.
type ResolveSourceFunc func(ctx context.Context, key, triedPath string) (ResolveDecision, string, error)

// Source describes one container or payload acquisition target.
type Source struct {
	Key           string
	LocalPath     string // absolute path if known, else ""
	RelativePath  string // resolved against OriginalSourceDir when LocalPath is empty
	DownloadURL   string
	Size          int64
}

// Acquirer fetches sources into destination paths under the cache store's
// staging area.
type Acquirer struct {
	originalSourceDir string
	limiter           *rate.Limiter
	retryPolicy       *resilience.RetryPolicy
	httpClient        *http.Client
	resolveSource     ResolveSourceFunc
}

// Config configures an Acquirer.
type Config struct {
	// OriginalSourceDir is the directory a relative source path is
	// resolved against (the bundle's "original source" variable).
	OriginalSourceDir string

	// BytesPerSecond caps download throughput; 0 disables throttling.
	BytesPerSecond int

	RetryPolicy   *resilience.RetryPolicy
	ResolveSource ResolveSourceFunc
	HTTPClient    *http.Client
}

// New creates an Acquirer.
func New(cfg Config) *Acquirer {
	var limiter *rate.Limiter
	if cfg.BytesPerSecond > 0 {
		// The burst must hold one whole copy chunk, or WaitN fails.
		burst := cfg.BytesPerSecond
		if burst < 64*1024 {
			burst = 64 * 1024
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), burst)
	}
	policy := cfg.RetryPolicy
	if policy == nil {
		policy = resilience.DefaultRetryPolicy()
	}
	if policy.ErrorChecker == nil {
		policy.ErrorChecker = ioOnlyErrorChecker{}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Acquirer{
		originalSourceDir: cfg.OriginalSourceDir,
		limiter:           limiter,
		retryPolicy:       policy,
		httpClient:        client,
		resolveSource:     cfg.ResolveSource,
	}
}

// AcquireToUnverified fetches src into dest (a path already allocated in
// the cache store's unverified area), invoking progress as bytes move and
// honoring cooperative cancellation.
func (a *Acquirer) AcquireToUnverified(ctx context.Context, src Source, dest string, progress ProgressFunc) error {
	if src.LocalPath != "" {
		if _, err := os.Stat(src.LocalPath); err == nil {
			return a.copyLocal(ctx, src.LocalPath, dest, src.Size, progress)
		}
	}

	if src.RelativePath != "" {
		candidate := filepath.Join(a.originalSourceDir, src.RelativePath)
		if _, err := os.Stat(candidate); err == nil {
			return a.copyLocal(ctx, candidate, dest, src.Size, progress)
		}
	}

	url := src.DownloadURL
	if url == "" {
		if a.resolveSource == nil {
			return errkind.New(errkind.NotFound, fmt.Sprintf("source for %s not found locally and no UX resolver configured", src.Key))
		}
		decision, resolvedURL, err := a.resolveSource(ctx, src.Key, src.LocalPath)
		if err != nil {
			return err
		}
		switch decision {
		case ResolveDownload:
			if resolvedURL == "" {
				return errkind.New(errkind.Validation, fmt.Sprintf("UX chose to download %s but supplied no URL", src.Key))
			}
			url = resolvedURL
		case ResolveRetry:
			return errkind.New(errkind.NotFound, fmt.Sprintf("UX asked to retry resolving %s; caller must re-invoke AcquireToUnverified", src.Key))
		case ResolveCancel, ResolveNone:
			return errkind.New(errkind.UserDecision, fmt.Sprintf("source resolution cancelled for %s", src.Key))
		}
	}

	return a.download(ctx, url, dest, src.Size, progress)
}

func (a *Acquirer) copyLocal(ctx context.Context, src, dest string, total int64, progress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return errkind.Wrap(errkind.IO, "open local source", err)
	}
	defer in.Close()

	if total == 0 {
		if info, statErr := in.Stat(); statErr == nil {
			total = info.Size()
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errkind.Wrap(errkind.IO, "create staging directory", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return errkind.Wrap(errkind.IO, "create staging file", err)
	}
	defer out.Close()

	return a.copyWithCancel(ctx, out, in, total, progress)
}

func (a *Acquirer) download(ctx context.Context, url, dest string, total int64, progress ProgressFunc) error {
	if strings.HasPrefix(url, "bits:") || strings.HasPrefix(url, "bitss:") {
		url = "https://" + strings.TrimPrefix(strings.TrimPrefix(url, "bitss:"), "bits:")
	}

	return resilience.WithRetry(ctx, a.retryPolicy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errkind.Wrap(errkind.Validation, "build download request", err)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return errkind.Wrap(errkind.IO, "execute download request", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errkind.New(errkind.IO, fmt.Sprintf("download %s: unexpected status %d", url, resp.StatusCode))
		}

		if total == 0 {
			total = resp.ContentLength
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errkind.Wrap(errkind.IO, "create staging directory", err)
		}
		out, err := os.Create(dest)
		if err != nil {
			return errkind.Wrap(errkind.IO, "create staging file", err)
		}
		defer out.Close()

		return a.copyWithCancel(ctx, out, resp.Body, total, progress)
	})
}

// ioOnlyErrorChecker retries only IO-kind failures (transient copy/
// download errors); user cancellation and validation errors propagate
// immediately instead of being retried.
type ioOnlyErrorChecker struct{}

func (ioOnlyErrorChecker) IsRetryable(err error) bool {
	return errkind.Is(err, errkind.IO)
}

// copyWithCancel copies src to dst in chunks, applying rate limiting,
// invoking progress per chunk, and aborting when progress returns false or
// ctx is cancelled.
func (a *Acquirer) copyWithCancel(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	var cumulative int64

	for {
		select {
		case <-ctx.Done():
			return errkind.Wrap(errkind.UserDecision, "acquisition cancelled", ctx.Err())
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if a.limiter != nil {
				if err := a.limiter.WaitN(ctx, n); err != nil {
					return errkind.Wrap(errkind.UserDecision, "rate limiter wait cancelled", err)
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return errkind.Wrap(errkind.IO, "write staged bytes", err)
			}
			cumulative += int64(n)
			if progress != nil && !progress(int64(n), cumulative) {
				return errkind.New(errkind.UserDecision, "acquisition cancelled by UX")
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errkind.Wrap(errkind.IO, "read source bytes", readErr)
		}
	}
}
