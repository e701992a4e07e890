package pool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransport marks failures where the pool could not be reached or answered
// with a server-side error: TCP resets, timeouts, 5xx, malformed bodies.
// Callers must never interpret a transport failure as "no positions open".
var ErrTransport = errors.New("pool transport failure")

// APIError is a definitive broker-side rejection carried over the pool API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pool API error %d: %s", e.Status, e.Body)
}

// IsTransport reports whether err is a transport-class failure (retryable,
// never to be treated as an empty result).
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUnknownPosition reports whether err is the broker telling us the position
// does not exist. On a close path this means the position is already gone.
func IsUnknownPosition(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == 404 {
		return true
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "position not found") ||
		strings.Contains(body, "unknown position") ||
		strings.Contains(body, "position_not_found")
}

// IsBrokerRejected reports whether err is a definitive 4xx rejection that must
// not be retried. 429 is excluded: rate limiting is a transport concern.
func IsBrokerRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
}

// IsRetryable reports whether a failed pool call may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTransport(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	return false
}

// isConnectionRefused detects upstream restarts. These do not count toward the
// per-account failure counter: a pool redeploy is not an account problem.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connect: cannot assign") ||
		strings.Contains(s, "no such host")
}
