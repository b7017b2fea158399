package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// StatusError is a non-200 reply from a provider's HTTP API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Transient reports whether the same request may succeed later.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryPolicy controls how failed completions are retried with exponential
// backoff. The writer pipeline never retries on its own; hosts opt in by
// wrapping their provider with WithRetry.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 1s initial delay, 2x multiplier and
// a 30s cap.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// ShouldRetry reports whether err is transient and attempt is still within
// MaxAttempts.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxAttempts {
		return false
	}
	return isTransient(err)
}

// isTransient classifies provider errors. Rate limits and upstream 5xx
// responses are transient; auth and validation failures are not. Errors
// without a status are classified by message.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "status 401"),
		strings.Contains(msg, "status 403"),
		strings.Contains(msg, "status 400"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"):
		return false
	case strings.Contains(msg, "status 429"),
		strings.Contains(msg, "status 5"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporary failure"):
		return true
	}
	return true
}

// NextDelay returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn until it succeeds, fails permanently, runs out of attempts,
// or ctx is cancelled while waiting between attempts.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		if attempt < p.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.NextDelay(attempt)):
			}
		}
	}
	return lastErr
}

type retryProvider struct {
	next   Provider
	policy *RetryPolicy
}

// WithRetry wraps a provider so transient Complete failures are retried
// according to policy.
func WithRetry(next Provider, policy *RetryPolicy) Provider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &retryProvider{next: next, policy: policy}
}

func (r *retryProvider) Complete(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*Response, error) {
	var resp *Response
	attempt := 0
	err := r.policy.Execute(ctx, func() error {
		attempt++
		var err error
		resp, err = r.next.Complete(ctx, messages, tools, opts...)
		if err != nil {
			slog.Warn("llm call failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
