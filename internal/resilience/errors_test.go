package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// ==================== TransientIOErrorChecker Tests ====================

func TestTransientIOErrorChecker_NilError(t *testing.T) {
	checker := &TransientIOErrorChecker{}

	if checker.IsRetryable(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestTransientIOErrorChecker_NonRetryableError(t *testing.T) {
	checker := &TransientIOErrorChecker{}
	err := fmt.Errorf("wrapped: %w", ErrNonRetryable)

	if checker.IsRetryable(err) {
		t.Error("Expected ErrNonRetryable to not be retryable")
	}
}

func TestTransientIOErrorChecker_NetworkErrors(t *testing.T) {
	checker := &TransientIOErrorChecker{}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "ECONNREFUSED",
			err:      &net.OpError{Err: syscall.ECONNREFUSED},
			expected: true,
		},
		{
			name:     "ECONNRESET",
			err:      &net.OpError{Err: syscall.ECONNRESET},
			expected: true,
		},
		{
			name:     "ENETUNREACH",
			err:      &net.OpError{Err: syscall.ENETUNREACH},
			expected: true,
		},
		{
			name:     "EHOSTUNREACH",
			err:      &net.OpError{Err: syscall.EHOSTUNREACH},
			expected: true,
		},
		{
			name:     "DNSError temporary",
			err:      &net.DNSError{IsTemporary: true},
			expected: true,
		},
		{
			name:     "DNSError not temporary",
			err:      &net.DNSError{IsTemporary: false},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestTransientIOErrorChecker_TimeoutErrors(t *testing.T) {
	checker := &TransientIOErrorChecker{}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "timeout in message",
			err:      errors.New("operation timeout"),
			expected: true,
		},
		{
			name:     "deadline exceeded",
			err:      errors.New("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "i/o timeout",
			err:      errors.New("i/o timeout"),
			expected: true,
		},
		{
			name:     "timed out",
			err:      errors.New("request timed out"),
			expected: true,
		},
		{
			name:     "not a timeout",
			err:      errors.New("invalid request"),
			expected: true, // Default checker retries all errors
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestTransientIOErrorChecker_TemporaryInterface(t *testing.T) {
	checker := &TransientIOErrorChecker{}

	// Create error implementing temporary interface
	tempErr := &temporaryError{isTemp: true}
	notTempErr := &temporaryError{isTemp: false}

	if !checker.IsRetryable(tempErr) {
		t.Error("Expected temporary error to be retryable")
	}

	if checker.IsRetryable(notTempErr) {
		t.Error("Expected non-temporary error to not be retryable")
	}
}

// Helper type implementing temporary interface
type temporaryError struct {
	isTemp bool
}

func (e *temporaryError) Error() string {
	return "temporary error"
}

func (e *temporaryError) Temporary() bool {
	return e.isTemp
}

// ==================== DownloadErrorChecker Tests ====================

func TestNewDownloadErrorChecker(t *testing.T) {
	checker := NewDownloadErrorChecker()

	if !checker.RetryOn5xx {
		t.Error("Expected RetryOn5xx to be true")
	}
	if !checker.RetryOn429 {
		t.Error("Expected RetryOn429 to be true")
	}
	if !checker.RetryOn408 {
		t.Error("Expected RetryOn408 to be true")
	}
}

func TestDownloadErrorChecker_NilError(t *testing.T) {
	checker := NewDownloadErrorChecker()

	if checker.IsRetryable(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestDownloadErrorChecker_5xxErrors(t *testing.T) {
	checker := NewDownloadErrorChecker()

	tests := []struct {
		statusCode int
		retryOn5xx bool
		expected   bool
	}{
		{500, true, true},  // Internal Server Error
		{502, true, true},  // Bad Gateway
		{503, true, true},  // Service Unavailable
		{504, true, true},  // Gateway Timeout
		{500, false, true}, // Disabled but fallback to transient-IO checker (all errors retryable)
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_retry_%v", tt.statusCode, tt.retryOn5xx), func(t *testing.T) {
			checker.RetryOn5xx = tt.retryOn5xx
			err := fmt.Errorf("HTTP %d error fetching container", tt.statusCode)

			result := checker.IsRetryable(err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", err, result, tt.expected)
			}
		})
	}
}

func TestDownloadErrorChecker_429RateLimitErrors(t *testing.T) {
	checker := NewDownloadErrorChecker()

	tests := []struct {
		name       string
		err        error
		retryOn429 bool
		expected   bool
	}{
		{
			name:       "429 enabled",
			err:        errors.New("HTTP 429 Too Many Requests"),
			retryOn429: true,
			expected:   true,
		},
		{
			name:       "429 disabled",
			err:        errors.New("HTTP 429 Too Many Requests"),
			retryOn429: false,
			expected:   true, // Falls back to transient-IO checker
		},
		{
			name:       "rate limit in message",
			err:        errors.New("mirror is rate limit exceeded"),
			retryOn429: true,
			expected:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker.RetryOn429 = tt.retryOn429
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestDownloadErrorChecker_408RequestTimeout(t *testing.T) {
	checker := NewDownloadErrorChecker()

	tests := []struct {
		name       string
		err        error
		retryOn408 bool
		expected   bool
	}{
		{
			name:       "408 enabled",
			err:        errors.New("HTTP 408 Request Timeout"),
			retryOn408: true,
			expected:   true,
		},
		{
			name:       "408 disabled",
			err:        errors.New("HTTP 408 Request Timeout"),
			retryOn408: false,
			expected:   true, // Falls back to transient-IO checker (timeout)
		},
		{
			name:       "Request Timeout in message",
			err:        errors.New("mirror returned Request Timeout"),
			retryOn408: true,
			expected:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker.RetryOn408 = tt.retryOn408
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestDownloadErrorChecker_NonHTTPErrors(t *testing.T) {
	checker := NewDownloadErrorChecker()

	// Non-HTTP errors should fall back to the transient-IO checker
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: true, // Transient-IO checker retries all by default
		},
		{
			name:     "network error",
			err:      &net.OpError{Err: syscall.ECONNREFUSED},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

// ==================== InstallerBusyErrorChecker Tests ====================

func TestInstallerBusyErrorChecker_NilError(t *testing.T) {
	checker := &InstallerBusyErrorChecker{}
	if checker.IsRetryable(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestInstallerBusyErrorChecker_AnotherInstallationInProgress(t *testing.T) {
	checker := &InstallerBusyErrorChecker{}
	err := errors.New("msiexec failed: 1618 another installation is already in progress")

	if !checker.IsRetryable(err) {
		t.Error("Expected ERROR_INSTALL_ALREADY_RUNNING to be retryable")
	}
}

func TestInstallerBusyErrorChecker_IOKindIsRetryable(t *testing.T) {
	checker := &InstallerBusyErrorChecker{}
	err := errkind.New(errkind.IO, "copy msi to staging")

	if !checker.IsRetryable(err) {
		t.Error("Expected errkind.IO failure to be retryable")
	}
}

func TestInstallerBusyErrorChecker_PackageFailureIsPermanent(t *testing.T) {
	checker := &InstallerBusyErrorChecker{}
	err := errkind.New(errkind.PackageFailure, "custom action returned 1603")

	if checker.IsRetryable(err) {
		t.Error("Expected a generic package failure to be treated as permanent")
	}
}

// ==================== ChainedErrorChecker Tests ====================

func TestChainedErrorChecker_NilError(t *testing.T) {
	checker := &ChainedErrorChecker{
		Checkers: []RetryableErrorChecker{
			&TransientIOErrorChecker{},
			NewDownloadErrorChecker(),
		},
	}

	if checker.IsRetryable(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestChainedErrorChecker_AnyCheckerReturnsTrue(t *testing.T) {
	checker := &ChainedErrorChecker{
		Checkers: []RetryableErrorChecker{
			&NeverRetryChecker{},
			&AlwaysRetryChecker{}, // This one returns true
			&NeverRetryChecker{},
		},
	}

	err := errors.New("test error")
	if !checker.IsRetryable(err) {
		t.Error("Expected chained checker to retry when any checker returns true")
	}
}

func TestChainedErrorChecker_AllCheckersReturnFalse(t *testing.T) {
	checker := &ChainedErrorChecker{
		Checkers: []RetryableErrorChecker{
			&NeverRetryChecker{},
			&NeverRetryChecker{},
		},
	}

	err := errors.New("test error")
	if checker.IsRetryable(err) {
		t.Error("Expected chained checker to not retry when all checkers return false")
	}
}

func TestChainedErrorChecker_EmptyCheckers(t *testing.T) {
	checker := &ChainedErrorChecker{
		Checkers: []RetryableErrorChecker{},
	}

	err := errors.New("test error")
	if checker.IsRetryable(err) {
		t.Error("Expected empty chained checker to not retry")
	}
}

// ==================== NeverRetryChecker Tests ====================

func TestNeverRetryChecker(t *testing.T) {
	checker := &NeverRetryChecker{}

	tests := []struct {
		name string
		err  error
	}{
		{"nil error", nil},
		{"generic error", errors.New("test")},
		{"network error", &net.OpError{Err: syscall.ECONNREFUSED}},
		{"timeout error", errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if checker.IsRetryable(tt.err) {
				t.Errorf("NeverRetryChecker should always return false, got true for %v", tt.err)
			}
		})
	}
}

// ==================== AlwaysRetryChecker Tests ====================

func TestAlwaysRetryChecker(t *testing.T) {
	checker := &AlwaysRetryChecker{}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false}, // nil is not retryable
		{"generic error", errors.New("test"), true},
		{"network error", &net.OpError{Err: syscall.ECONNREFUSED}, true},
		{"non-retryable error", fmt.Errorf("wrapped: %w", ErrNonRetryable), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

// ==================== Helper Functions Tests ====================

func TestIsTransientNetworkError_NilError(t *testing.T) {
	if isTransientNetworkError(nil) {
		t.Error("Expected nil error to not be transient")
	}
}

func TestIsTransientNetworkError_NonNetworkError(t *testing.T) {
	err := errors.New("generic error")
	if isTransientNetworkError(err) {
		t.Error("Expected non-network error to not be transient")
	}
}

func TestIsTimeoutError_NilError(t *testing.T) {
	if isTimeoutError(nil) {
		t.Error("Expected nil error to not be timeout")
	}
}

func TestIsTimeoutError_TimeoutInterface(t *testing.T) {
	// Create error implementing timeout interface
	timeoutErr := &timeoutError{isTimeout: true}
	notTimeoutErr := &timeoutError{isTimeout: false}

	if !isTimeoutError(timeoutErr) {
		t.Error("Expected timeout error to be detected")
	}

	// Note: notTimeoutErr.Temporary() returns false, so TransientIOErrorChecker
	// won't find it via the temporary interface, but isTimeoutError checks
	// the Timeout() method directly
	if isTimeoutError(notTimeoutErr) {
		t.Error("Expected non-timeout error to not be detected")
	}
}

// Helper type implementing timeout interface
type timeoutError struct {
	isTimeout bool
}

func (e *timeoutError) Error() string {
	if e.isTimeout {
		return "timeout error"
	}
	return "generic network error"
}

func (e *timeoutError) Timeout() bool {
	return e.isTimeout
}

func (e *timeoutError) Temporary() bool {
	// Always return false to avoid TransientIOErrorChecker catching it via Temporary()
	return false
}

// ==================== Edge Cases ====================

func TestErrorCheckerWithWrappedErrors(t *testing.T) {
	checker := &TransientIOErrorChecker{}

	// Test wrapped errors
	baseErr := errors.New("connection refused")
	wrappedErr := fmt.Errorf("failed to connect: %w", baseErr)
	doubleWrappedErr := fmt.Errorf("operation failed: %w", wrappedErr)

	// All should be retryable (default behavior)
	if !checker.IsRetryable(baseErr) {
		t.Error("Expected base error to be retryable")
	}
	if !checker.IsRetryable(wrappedErr) {
		t.Error("Expected wrapped error to be retryable")
	}
	if !checker.IsRetryable(doubleWrappedErr) {
		t.Error("Expected double-wrapped error to be retryable")
	}
}

func TestComplexChainedChecker(t *testing.T) {
	// Create a complex chained checker
	downloadChecker := NewDownloadErrorChecker()
	downloadChecker.RetryOn5xx = true
	downloadChecker.RetryOn429 = false

	checker := &ChainedErrorChecker{
		Checkers: []RetryableErrorChecker{
			downloadChecker,
			&TransientIOErrorChecker{},
		},
	}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "HTTP 500",
			err:      errors.New("HTTP 500 Internal Server Error"),
			expected: true,
		},
		{
			name:     "HTTP 429 (disabled in download checker, but transient-IO catches it)",
			err:      errors.New("HTTP 429 Too Many Requests"),
			expected: true,
		},
		{
			name:     "Network error",
			err:      &net.OpError{Err: syscall.ECONNREFUSED},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

// Note: Benchmarks for error checkers are in retry_bench_test.go
