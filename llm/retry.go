package llm

import (
	"context"
	"net/http"
	"time"
)

// RetryStrategy decides whether a failed request is attempted again.
type RetryStrategy interface {
	// ShouldRetry determines if a retry should be attempted.
	ShouldRetry(err error) bool

	// NextDelay returns the delay before the next retry.
	NextDelay() time.Duration

	// Reset resets the retry state.
	Reset()
}

// DefaultRetryStrategy implements a simple exponential backoff strategy.
type DefaultRetryStrategy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	attempts    int
}

// NewDefaultRetryStrategy retries up to three times starting at 500ms.
func NewDefaultRetryStrategy() *DefaultRetryStrategy {
	return &DefaultRetryStrategy{
		MaxRetries:  3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

func (s *DefaultRetryStrategy) ShouldRetry(err error) bool {
	if s.attempts >= s.MaxRetries {
		return false
	}
	return IsRetryable(err)
}

const maxShiftAmount = 30

func (s *DefaultRetryStrategy) NextDelay() time.Duration {
	s.attempts++
	shiftAmount := min(s.attempts-1, maxShiftAmount)
	delay := s.InitialWait * time.Duration(1<<shiftAmount)
	if s.MaxWait > 0 && delay > s.MaxWait {
		delay = s.MaxWait
	}
	return delay
}

func (s *DefaultRetryStrategy) Reset() {
	s.attempts = 0
}

// IsRetryable reports whether err happened before the provider accepted
// the request in a way worth repeating: connection setup failures, 429 and
// 5xx gateway statuses.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsErrorType(err, ErrorTypeTransportSetup):
		return true
	case IsErrorType(err, ErrorTypeHTTPStatus):
		switch StatusCode(err) {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// RequestWithRetry is Request with retries around opening the stream.
// Once a stream is open nothing is retried, so a chunk is never delivered
// twice. Handlers see only the final attempt's terminal events.
func (c *Client) RequestWithRetry(ctx context.Context, prompt string, h Handlers, strategy RetryStrategy) Result {
	if strategy == nil {
		strategy = NewDefaultRetryStrategy()
	}
	strategy.Reset()

	for attempt := 1; ; attempt++ {
		stream, err := c.Stream(ctx, prompt)
		if err == nil {
			return drain(ctx, stream, h)
		}
		if !strategy.ShouldRetry(err) {
			return failedBeforeStream(err, h)
		}

		delay := strategy.NextDelay()
		c.logger.Warn("Request attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return failedBeforeStream(cancelledError(ctx), h)
		case <-timer.C:
		}
	}
}
