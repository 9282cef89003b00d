package analytics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the analytics API. Transient errors
// (throttling, upstream 5xx) are worth retrying; everything else is treated
// as permanent for the window being fetched.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("analytics api status %d (retry after %s)", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("analytics api status %d: %s", e.StatusCode, e.Body)
}

var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransient reports whether err is worth retrying: throttled or failing
// upstream, a network error, or a timeout. Malformed payloads and client
// errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return transientStatus[apiErr.StatusCode]
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// RetryAfterHint returns the server-provided backoff, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

func newAPIError(resp *http.Response, body string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: body}
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
