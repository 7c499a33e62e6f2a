package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often an adapter repeats a failed remote call.
// A zero MaxAttempts means a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep replaces the timer wait when set. The context is still checked
	// afterwards.
	Sleep func(time.Duration)
}

// RetryableError marks a failure the remote side may not repeat, such as an
// empty completion, even though it carries no status code.
type RetryableError interface {
	error
	RetryableFailure() bool
}

// Attempts returns the effective attempt count.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, returns a permanent error, or the policy is
// exhausted. When fn ran more than once the last error is returned with the
// attempt count prefixed.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(attempt int) error) error {
	attempts := p.Attempts()
	var last error
	made := 0
	for made < attempts {
		made++
		last = fn(made)
		if last == nil {
			return nil
		}
		if made == attempts {
			break
		}
		delay, ok := p.next(ctx, last, made)
		if !ok {
			break
		}
		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}
	if made == 1 {
		return last
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, made, last)
}

func (p RetryPolicy) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if !apiErr.Retryable() {
			return 0, false
		}
		if apiErr.RetryAfter > 0 {
			return p.clamp(apiErr.RetryAfter), true
		}
		return p.Backoff(attempt), true
	}
	var marked RetryableError
	if errors.As(err, &marked) && marked.RetryableFailure() {
		return p.Backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.Backoff(attempt), true
	}
	return 0, false
}

// Backoff returns BaseDelay doubled once per prior attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	maxInterval := p.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return p.clamp(delay)
}

func (p RetryPolicy) clamp(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.Sleep != nil {
		p.Sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header given either as delta seconds
// or as an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if delay := time.Until(when); delay > 0 {
		return delay, true
	}
	return 0, false
}

// ResponseError builds the APIError for a non-success response whose body has
// already been read.
func ResponseError(service string, resp *http.Response, body []byte) *APIError {
	retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
	return &APIError{
		Service:    service,
		Status:     resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: retryAfter,
	}
}
