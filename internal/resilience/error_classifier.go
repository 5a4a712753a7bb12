package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// classifyError classifies an error into a type for metrics labeling.
//
// Error types:
//   - "timeout": Timeout or deadline exceeded errors
//   - "network": Network connectivity errors (connection refused, reset, unreachable)
//   - "rate_limit": A download mirror throttling this bundle's requests
//   - "install_busy": The Windows Installer mutex is held by another product
//   - "context_cancelled": Context cancellation
//   - "context_deadline": Context deadline exceeded
//   - "dns": DNS resolution errors
//   - "io": An errkind.IO failure (copy/verify/disk) with no more specific cause
//   - "unknown": All other errors
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "context_cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "context_deadline"
	}

	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	// Network operation errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "network"
	}

	errMsg := strings.ToLower(err.Error())

	// Installer-busy: another product holds the Windows Installer mutex
	for _, indicator := range installAlreadyRunningIndicators {
		if strings.Contains(errMsg, indicator) {
			return "install_busy"
		}
	}

	// Rate limiting on a download mirror
	if strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "too many requests") ||
		strings.Contains(errMsg, "429") {
		return "rate_limit"
	}

	// Timeout errors
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") ||
		strings.Contains(errMsg, "timed out") ||
		strings.Contains(errMsg, "i/o timeout") {
		return "timeout"
	}

	// Network errors (generic)
	if strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "network") {
		return "network"
	}

	// Fall back to the engine's own taxonomy before giving up
	if errkind.Is(err, errkind.IO) {
		return "io"
	}

	return "unknown"
}
