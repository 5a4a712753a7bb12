package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Common retry-related errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts are exhausted
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrNonRetryable is returned when an error is explicitly non-retryable
	ErrNonRetryable = errors.New("error is not retryable")
)

// installAlreadyRunningIndicators are the message fragments a msiexec/wusa
// shell-out reports when another installation already holds the Windows
// Installer mutex (ERROR_INSTALL_ALREADY_RUNNING, 1618). That condition
// clears itself given time, unlike a malformed manifest or an unresolved
// missing payload.
var installAlreadyRunningIndicators = []string{
	"1618",
	"another installation is already in progress",
	"another installation is currently in progress",
}

// TransientIOErrorChecker is the default RetryableErrorChecker for cache
// acquisition: it considers network errors, timeouts, and the Go stdlib's
// ad-hoc "temporary" interface as retryable, and also retries any error it
// does not recognise; only ErrNonRetryable and errors whose Temporary()
// reports false are treated as permanent.
type TransientIOErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker interface.
// Returns true for transient errors that should be retried.
func (c *TransientIOErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Explicitly non-retryable errors
	if errors.Is(err, ErrNonRetryable) {
		return false
	}

	// Network errors - check for transient conditions
	if isTransientNetworkError(err) {
		return true
	}

	// Timeout errors - generally retryable
	if isTimeoutError(err) {
		return true
	}

	// Check for "temporary" interface (common in Go stdlib)
	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	// Default: assume error is retryable
	return true
}

// isTransientNetworkError determines if a network error is transient.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// DNS errors - temporary failures are retryable
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	// Operation errors - check for specific syscall errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection refused - service might be restarting (retryable)
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
		// Connection reset - transient network issue (retryable)
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true
		}
		// Network unreachable - might be temporary (retryable)
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return true
		}
		// Host unreachable - might be temporary (retryable)
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if an error represents a timeout.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	// Check error message for timeout indicators
	errMsg := err.Error()
	timeoutIndicators := []string{
		"timeout",
		"deadline exceeded",
		"context deadline exceeded",
		"i/o timeout",
		"timed out",
	}

	for _, indicator := range timeoutIndicators {
		if strings.Contains(strings.ToLower(errMsg), indicator) {
			return true
		}
	}

	// Check for timeout interface
	type timeout interface {
		Timeout() bool
	}
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}

	return false
}

// DownloadErrorChecker checks whether a container or payload download
// failure is retryable, based on the HTTP status an acquire source's
// download URL reported.
type DownloadErrorChecker struct {
	// RetryOn5xx enables retrying on 5xx server errors
	RetryOn5xx bool

	// RetryOn429 enables retrying on 429 Too Many Requests
	RetryOn429 bool

	// RetryOn408 enables retrying on 408 Request Timeout
	RetryOn408 bool
}

// NewDownloadErrorChecker creates a DownloadErrorChecker with sensible
// defaults for container/payload acquisition.
func NewDownloadErrorChecker() *DownloadErrorChecker {
	return &DownloadErrorChecker{
		RetryOn5xx: true, // the mirror serving the container is transiently down
		RetryOn429: true, // the mirror is throttling this bundle's downloads
		RetryOn408: true, // the mirror timed out handing back the payload
	}
}

// IsRetryable implements RetryableErrorChecker for download errors.
func (c *DownloadErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Check for 5xx errors
	if c.RetryOn5xx {
		for code := 500; code < 600; code++ {
			if strings.Contains(errMsg, fmt.Sprintf("%d", code)) ||
				strings.Contains(errMsg, fmt.Sprintf("HTTP %d", code)) {
				return true
			}
		}
	}

	// Check for 429 Too Many Requests
	if c.RetryOn429 && (strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "Too Many Requests") ||
		strings.Contains(errMsg, "rate limit")) {
		return true
	}

	// Check for 408 Request Timeout
	if c.RetryOn408 && (strings.Contains(errMsg, "408") ||
		strings.Contains(errMsg, "Request Timeout")) {
		return true
	}

	// Fallback to the transient-IO checker for non-HTTP errors
	defaultChecker := &TransientIOErrorChecker{}
	return defaultChecker.IsRetryable(err)
}

// InstallerBusyErrorChecker is the RetryableErrorChecker C6 package-execute
// dispatch uses: it retries only when the underlying msiexec/wusa shell-out
// reports the Windows Installer mutex is held by another product, or when
// errkind classifies the failure as IO (a locked file, a transient copy
// failure). Every other PackageFailure is permanent: a bad property value
// or a failing custom action will not succeed on a second attempt.
type InstallerBusyErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *InstallerBusyErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errkind.Is(err, errkind.IO) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	for _, indicator := range installAlreadyRunningIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}

	return false
}

// ChainedErrorChecker chains multiple error checkers together.
// Returns true if ANY checker says the error is retryable.
type ChainedErrorChecker struct {
	Checkers []RetryableErrorChecker
}

// IsRetryable implements RetryableErrorChecker.
// Returns true if any of the chained checkers returns true.
func (c *ChainedErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	for _, checker := range c.Checkers {
		if checker.IsRetryable(err) {
			return true
		}
	}

	return false
}

// NeverRetryChecker always returns false (never retry).
type NeverRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *NeverRetryChecker) IsRetryable(err error) bool {
	return false
}

// AlwaysRetryChecker always returns true (always retry).
type AlwaysRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *AlwaysRetryChecker) IsRetryable(err error) bool {
	return err != nil
}
