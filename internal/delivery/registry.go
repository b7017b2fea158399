// internal/delivery/registry.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/user/wonderland/internal/types"
)

// Sink delivers a published post somewhere outside the network.
type Sink func(ctx context.Context, post *types.WonderlandPost) error

// Registry fans published posts out to named sinks (e.g. "nats",
// "telegram"). A failing sink never stops the others.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register adds or replaces the sink called name.
func (r *Registry) Register(name string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = sink
}

// Unregister removes the sink called name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, name)
}

// Names lists registered sinks, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver sends post to every sink in name order. Failures and panics are
// collected into the returned error.
func (r *Registry) Deliver(ctx context.Context, post *types.WonderlandPost) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sinks := make(map[string]Sink, len(r.sinks))
	for name, s := range r.sinks {
		sinks[name] = s
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := call(ctx, sinks[name], post); err != nil {
			slog.Warn("post delivery failed", "sink", name, "post_id", post.PostID, "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, sink Sink, post *types.WonderlandPost) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink(ctx, post.Clone())
}
