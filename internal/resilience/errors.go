package resilience

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError marks a failure as safe to retry. RetryAfter, when set,
// is the minimum wait the remote asked for.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ClassifyStatus marks err transient when status is worth retrying.
func ClassifyStatus(err error, status int) error {
	if err == nil || !IsTransientHTTPStatus(status) {
		return err
	}
	return NewTransientError(err, status)
}

// ClassifyResponse is ClassifyStatus for a response, also picking up a
// Retry-After header given in seconds.
func ClassifyResponse(err error, resp *http.Response) error {
	classified := ClassifyStatus(err, resp.StatusCode)
	var te *TransientError
	if errors.As(classified, &te) {
		if secs, convErr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); convErr == nil && secs > 0 {
			te.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return classified
}

// retryAfter returns the wait requested by a wrapped TransientError.
func retryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// Network failures whose text is the only reliable signal.
var transientMessages = [...]string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.As(err, new(*TransientError)):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether a response status is retryable:
// 408, 429 and the 5xx codes other than 501 and 505.
func IsTransientHTTPStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	if status < 500 || status > 599 {
		return false
	}
	return status != http.StatusNotImplemented && status != http.StatusHTTPVersionNotSupported
}
