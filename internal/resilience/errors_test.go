package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"message", errors.New("read tcp: i/o timeout"), true},
		{"permanent", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("status")
	assert.True(t, IsTransient(ClassifyStatus(base, 429)))
	assert.True(t, IsTransient(ClassifyStatus(base, 502)))
	assert.False(t, IsTransient(ClassifyStatus(base, 401)))
	assert.NoError(t, ClassifyStatus(nil, 500))

	var te *TransientError
	assert.True(t, errors.As(ClassifyStatus(base, 503), &te))
	assert.Equal(t, 503, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, s := range []int{408, 429, 500, 502, 503, 504, 599} {
		assert.True(t, IsTransientHTTPStatus(s), "status %d", s)
	}
	for _, s := range []int{200, 400, 401, 404, 501, 505} {
		assert.False(t, IsTransientHTTPStatus(s), "status %d", s)
	}
}

func TestClassifyResponse_RetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")

	var te *TransientError
	require.True(t, errors.As(ClassifyResponse(errors.New("slow down"), resp), &te))
	assert.Equal(t, 7*time.Second, te.RetryAfter)

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	require.True(t, errors.As(ClassifyResponse(errors.New("slow down"), resp), &te))
	assert.Zero(t, te.RetryAfter)

	resp = &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{"Retry-After": {"7"}}}
	assert.False(t, IsTransient(ClassifyResponse(errors.New("denied"), resp)))
}
