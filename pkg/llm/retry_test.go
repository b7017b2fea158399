package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}
	if !policy.ShouldRetry(errors.New("API error (status 429): slow down"), 1) {
		t.Error("expected rate limit to be retryable")
	}
	if policy.ShouldRetry(errors.New("error"), 4) {
		t.Error("should not retry after max attempts")
	}

	if d := policy.NextDelay(1); d != 1*time.Second {
		t.Errorf("expected 1s delay, got %v", d)
	}
	if d := policy.NextDelay(3); d != 4*time.Second {
		t.Errorf("expected 4s delay, got %v", d)
	}
}

func TestRetryPolicyPermanentErrors(t *testing.T) {
	policy := DefaultRetryPolicy()
	for _, msg := range []string{"invalid request", "API error (status 401): unauthorized", "forbidden"} {
		if policy.ShouldRetry(errors.New(msg), 1) {
			t.Errorf("expected %q to be permanent", msg)
		}
	}
	if policy.ShouldRetry(nil, 1) {
		t.Error("nil error should not be retryable")
	}
}

func TestRetryPolicyStatusErrors(t *testing.T) {
	policy := DefaultRetryPolicy()
	cases := map[int]bool{429: true, 500: true, 503: true, 400: false, 401: false, 404: false}
	for code, want := range cases {
		// "invalid" in the message must not override the status.
		err := fmt.Errorf("writer: %w", &StatusError{StatusCode: code, Message: "invalid upstream reply"})
		if got := policy.ShouldRetry(err, 1); got != want {
			t.Errorf("status %d: ShouldRetry = %v, want %v", code, got, want)
		}
	}
	if policy.ShouldRetry(context.Canceled, 1) {
		t.Error("cancellation should not be retried")
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 10, MaxDelay: 30 * time.Second}
	if d := policy.NextDelay(5); d > policy.MaxDelay {
		t.Errorf("delay %v exceeds max delay %v", d, policy.MaxDelay)
	}
}

func TestRetryPolicyExecuteCancelled(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := policy.Execute(ctx, func() error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	calls := 0
	inner := ProviderFunc(func(_ context.Context, _ []Message, _ []Tool, _ ...CallOption) (*Response, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("temporary failure")
		}
		return &Response{Content: "ok"}, nil
	})
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}

	resp, err := WithRetry(inner, policy).Complete(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Errorf("expected ok after 2 calls, got %q after %d", resp.Content, calls)
	}
}

func TestWithRetryStopsOnPermanentFailure(t *testing.T) {
	calls := 0
	inner := ProviderFunc(func(_ context.Context, _ []Message, _ []Tool, _ ...CallOption) (*Response, error) {
		calls++
		return nil, errors.New("API error (status 401): bad key")
	})
	if _, err := WithRetry(inner, nil).Complete(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
