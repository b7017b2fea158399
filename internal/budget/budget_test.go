// internal/budget/budget_test.go
package budget

import (
	"strings"
	"testing"
)

func TestNewCounter(t *testing.T) {
	c, err := New("gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	if n := c.Count("hello world"); n < 1 || n > 4 {
		t.Errorf("unexpected token count %d", n)
	}
}

func TestTruncateWithTokenizer(t *testing.T) {
	c, err := New("some-unknown-model")
	if err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 200)
	out := c.Truncate(long, 50)
	if !strings.HasSuffix(out, TruncationMarker) {
		t.Fatal("expected truncation marker")
	}
	if c.Count(strings.TrimSuffix(out, TruncationMarker)) > 50 {
		t.Errorf("truncated text exceeds budget")
	}
	if got := c.Truncate("short", 50); got != "short" {
		t.Errorf("short text should be unchanged, got %q", got)
	}
}

func TestApproximateCounter(t *testing.T) {
	c := Approximate()
	if got := c.Count("abcdefgh"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	out := c.Truncate(strings.Repeat("é", 100), 5)
	if !strings.HasSuffix(out, TruncationMarker) {
		t.Fatal("expected truncation marker")
	}
	body := strings.TrimSuffix(out, TruncationMarker)
	if len(body) > 20 || strings.ContainsRune(body, '�') {
		t.Errorf("bad approximate truncation %q", body)
	}

	var nilCounter *Counter
	if nilCounter.Count("abcd") != 1 {
		t.Error("nil counter should approximate")
	}
	if got := nilCounter.Truncate("abcd", 0); got != "abcd" {
		t.Error("zero budget disables truncation")
	}
}
