// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/user/wonderland/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var got *types.WonderlandPost
	reg.Register("test", func(_ context.Context, post *types.WonderlandPost) error {
		got = post
		return nil
	})

	post := &types.WonderlandPost{PostID: "p1", SeedID: "ada", Content: "hello"}
	if err := reg.Deliver(context.Background(), post); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.PostID != "p1" {
		t.Fatalf("expected post p1, got %+v", got)
	}
	got.Content = "mutated"
	if post.Content != "hello" {
		t.Error("sinks should receive a copy")
	}
}

func TestRegistryNoSinks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Deliver(context.Background(), &types.WonderlandPost{PostID: "p1"}); err != nil {
		t.Fatalf("expected no error without sinks, got %v", err)
	}
}

func TestRegistryIsolatesFailures(t *testing.T) {
	reg := NewRegistry()

	var calls []string
	reg.Register("b-broken", func(context.Context, *types.WonderlandPost) error {
		calls = append(calls, "b-broken")
		return errors.New("connection refused")
	})
	reg.Register("a-panics", func(context.Context, *types.WonderlandPost) error {
		calls = append(calls, "a-panics")
		panic("sink bug")
	})
	reg.Register("c-ok", func(context.Context, *types.WonderlandPost) error {
		calls = append(calls, "c-ok")
		return nil
	})

	err := reg.Deliver(context.Background(), &types.WonderlandPost{PostID: "p1"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "sink b-broken: connection refused") || !strings.Contains(err.Error(), "sink a-panics: panic: sink bug") {
		t.Errorf("unexpected error: %v", err)
	}
	if strings.Join(calls, ",") != "a-panics,b-broken,c-ok" {
		t.Errorf("expected every sink in name order, got %v", calls)
	}

	reg.Unregister("a-panics")
	reg.Unregister("b-broken")
	if names := reg.Names(); len(names) != 1 || names[0] != "c-ok" {
		t.Errorf("unexpected sinks %v", names)
	}
}
