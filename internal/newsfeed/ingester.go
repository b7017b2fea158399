// internal/newsfeed/ingester.go
package newsfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/wonderland/internal/types"
)

const (
	// MaxBodyChars caps the normalized body carried on a stimulus.
	MaxBodyChars = 1200
	// seenTTL is how long a dispatched URL suppresses duplicates.
	seenTTL = 48 * time.Hour
)

// ErrUnknownSource is returned by Poll for an unregistered source.
var ErrUnknownSource = errors.New("unknown news source")

// Dispatcher receives normalized items. The stimulus router satisfies it.
type Dispatcher interface {
	IngestWorldFeed(ctx context.Context, item types.WorldFeedItem, priority types.Priority) (*types.StimulusEvent, error)
}

// PriorityThresholds maps upstream scores to stimulus priority.
type PriorityThresholds struct {
	High     int
	Breaking int
}

type source struct {
	fetcher    Fetcher
	thresholds PriorityThresholds
}

// Ingester polls registered fetchers and dispatches new items as
// world_feed stimuli.
type Ingester struct {
	mu      sync.Mutex
	out     Dispatcher
	sources map[string]source
	seen    map[string]time.Time
	now     func() time.Time
}

func NewIngester(out Dispatcher) *Ingester {
	return &Ingester{
		out:     out,
		sources: make(map[string]source),
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// Register binds a fetcher to a source name. The name becomes the
// sourceName of every item it produces.
func (in *Ingester) Register(name string, f Fetcher, th PriorityThresholds) {
	in.mu.Lock()
	in.sources[name] = source{fetcher: f, thresholds: th}
	in.mu.Unlock()
}

// Sources lists registered source names, sorted.
func (in *Ingester) Sources() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, 0, len(in.sources))
	for name := range in.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Poll fetches one source and dispatches items not seen before. It returns
// the number dispatched.
func (in *Ingester) Poll(ctx context.Context, name string) (int, error) {
	in.mu.Lock()
	src, ok := in.sources[name]
	in.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	items, err := src.fetcher.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll %s: %w", name, err)
	}

	sent := 0
	for _, f := range items {
		item := f.Item
		item.SourceName = name
		key := dedupeKey(item)
		if !in.markSeen(key) {
			continue
		}
		item.Body = NormalizeBody(item.Body)
		if _, err := in.out.IngestWorldFeed(ctx, item, priorityFor(f.Score, src.thresholds)); err != nil {
			slog.Warn("dispatch news item failed", "source", name, "headline", item.Headline, "error", err)
			continue
		}
		sent++
	}
	slog.Info("news source polled", "source", name, "fetched", len(items), "dispatched", sent)
	return sent, nil
}

// PollAll polls every source, logging failures, and returns the total
// dispatched.
func (in *Ingester) PollAll(ctx context.Context) int {
	total := 0
	for _, name := range in.Sources() {
		n, err := in.Poll(ctx, name)
		if err != nil {
			slog.Warn("news poll failed", "source", name, "error", err)
			continue
		}
		total += n
	}
	return total
}

func (in *Ingester) markSeen(key string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.now()
	for k, at := range in.seen {
		if now.Sub(at) > seenTTL {
			delete(in.seen, k)
		}
	}
	if _, dup := in.seen[key]; dup {
		return false
	}
	in.seen[key] = now
	return true
}

func dedupeKey(item types.WorldFeedItem) string {
	if item.SourceURL != "" {
		return strings.TrimRight(strings.ToLower(item.SourceURL), "/")
	}
	return item.SourceName + "|" + strings.ToLower(strings.TrimSpace(item.Headline))
}

func priorityFor(score int, th PriorityThresholds) types.Priority {
	switch {
	case th.Breaking > 0 && score >= th.Breaking:
		return types.PriorityBreaking
	case th.High > 0 && score >= th.High:
		return types.PriorityHigh
	}
	return types.PriorityNormal
}

// NormalizeBody converts HTML fragments to markdown and caps the length.
// Plain text passes through unchanged apart from trimming.
func NormalizeBody(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		if md, err := htmltomarkdown.ConvertString(body); err == nil {
			body = strings.TrimSpace(md)
		}
	}
	return truncate(body, MaxBodyChars)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
