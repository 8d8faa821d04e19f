package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"generic error", errors.New("reset"), 1, true},
		{"attempts spent", errors.New("reset"), 3, false},
		{"canceled", context.Canceled, 1, false},
		{"deadline", context.DeadlineExceeded, 1, false},
		{"throttled", &StatusError{Code: http.StatusTooManyRequests}, 1, true},
		{"server error", &StatusError{Code: http.StatusBadGateway}, 1, true},
		{"not found", &StatusError{Code: http.StatusNotFound}, 1, false},
		{"not html", ErrFetchFailed, 1, false},
		{"net timeout", timeoutErr{}, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestExponentialRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 10*time.Millisecond, 50*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestStatusErrorMatchesFetchFailed(t *testing.T) {
	t.Parallel()

	err := &StatusError{URL: "https://x", Code: http.StatusForbidden}
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "Forbidden")
}

func TestFetchResponseChecks(t *testing.T) {
	t.Parallel()

	ok := FetchResponse{StatusCode: 200, Headers: http.Header{"Content-Type": {"text/html; charset=utf-8"}}}
	assert.True(t, ok.OK())
	assert.True(t, ok.IsHTML())

	rendered := FetchResponse{StatusCode: 200, Headers: http.Header{}, Body: []byte("<html/>")}
	assert.True(t, rendered.IsHTML())

	js := FetchResponse{StatusCode: 200, Headers: http.Header{"Content-Type": {"application/json"}}}
	assert.False(t, js.IsHTML())
	assert.False(t, FetchResponse{StatusCode: 301}.OK())
}
