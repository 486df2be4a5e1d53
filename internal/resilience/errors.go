package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a sink failure that is safe to retry.
type TransientError struct {
	Err  error
	Sink string
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable for the named sink.
func NewTransientError(err error, sink string) *TransientError {
	return &TransientError{Err: err, Sink: sink}
}

// transientPatterns are substrings of driver and broker errors that clear up
// on their own: dropped connections, leader elections, cluster failover.
var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"no such host",
	"temporary failure in name resolution",
	"leader not available",
	"not leader for partition",
	"request timed out",
	"serviceunavailable",
	"sessionexpired",
	"transienterror",
	"too many connections",
}

// IsTransient reports whether err (or any error in its chain) should be
// retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
