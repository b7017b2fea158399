// internal/stimulus/router.go
package stimulus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/wonderland/internal/types"
)

// Handler consumes a stimulus delivered to a subscription.
type Handler func(ctx context.Context, ev *types.StimulusEvent) error

// Filter narrows which events reach a subscription. Empty fields match
// everything. Categories only constrain events that carry a category.
type Filter struct {
	Types      []types.StimulusType
	Categories []string
}

func (f Filter) matches(ev *types.StimulusEvent) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == ev.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if cat := ev.Category(); cat != "" && len(f.Categories) > 0 {
		for _, c := range f.Categories {
			if c == cat {
				return true
			}
		}
		return false
	}
	return true
}

// Options configures a Router.
type Options struct {
	// MaxConcurrent bounds handlers running at once across all lanes.
	MaxConcurrent int64
	// LaneSize is the buffer of each subscription's FIFO lane.
	LaneSize int
	// Now overrides the clock used to stamp events.
	Now func() time.Time
}

type subscription struct {
	id      string
	handler Handler
	filter  Filter
	lane    chan *types.StimulusEvent
	closed  atomic.Bool
}

// Router fans stimuli out to subscribers. Each subscription owns a FIFO
// lane drained by its own goroutine, so delivery to a single subscriber is
// in submission order while a slow subscriber never blocks the others. A
// weighted semaphore bounds the number of handlers running at once.
type Router struct {
	mu        sync.RWMutex
	subs      map[string]*subscription
	sources   map[string]types.WorldFeedSource
	cronTicks map[string]int

	semaphore *semaphore.Weighted
	laneSize  int
	now       func() time.Time

	pending atomic.Int64

	statsMu         sync.Mutex
	eventsByType    map[types.StimulusType]int
	totalDispatched int
	deliveries      int
	failures        int
	dropped         int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewRouter creates a Router ready to accept subscriptions.
func NewRouter(opts Options) *Router {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.LaneSize <= 0 {
		opts.LaneSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		subs:         make(map[string]*subscription),
		sources:      make(map[string]types.WorldFeedSource),
		cronTicks:    make(map[string]int),
		semaphore:    semaphore.NewWeighted(opts.MaxConcurrent),
		laneSize:     opts.LaneSize,
		now:          opts.Now,
		eventsByType: make(map[types.StimulusType]int),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Subscribe registers handler under id, replacing any existing subscription
// with that id.
func (r *Router) Subscribe(id string, handler Handler, filter Filter) {
	sub := &subscription{
		id:      id,
		handler: handler,
		filter:  filter,
		lane:    make(chan *types.StimulusEvent, r.laneSize),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if old, ok := r.subs[id]; ok {
		r.retire(old)
	}
	r.subs[id] = sub
	r.wg.Add(1)
	go r.processLane(sub)
	slog.Debug("stimulus subscription added", "id", id, "types", len(filter.Types), "categories", len(filter.Categories))
}

// Unsubscribe removes the subscription for id. Handlers already running
// complete; queued deliveries are discarded. Calling it again is a no-op.
func (r *Router) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[id]; ok {
		r.retire(sub)
		delete(r.subs, id)
		slog.Debug("stimulus subscription removed", "id", id)
	}
}

// retire must be called with r.mu held.
func (r *Router) retire(sub *subscription) {
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.lane)
	}
}

// HasSubscription reports whether id is currently subscribed.
func (r *Router) HasSubscription(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[id]
	return ok
}

func (r *Router) processLane(sub *subscription) {
	defer r.wg.Done()
	for ev := range sub.lane {
		if sub.closed.Load() || r.ctx.Err() != nil {
			r.pending.Add(-1)
			continue
		}
		if err := r.semaphore.Acquire(r.ctx, 1); err != nil {
			r.pending.Add(-1)
			continue
		}
		r.invoke(sub, ev)
		r.semaphore.Release(1)
		r.pending.Add(-1)
	}
}

func (r *Router) invoke(sub *subscription, ev *types.StimulusEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.countFailure()
			slog.Error("stimulus handler panicked", "subscriber", sub.id, "event_id", ev.EventID, "panic", rec)
		}
	}()
	if err := sub.handler(r.ctx, ev); err != nil {
		r.countFailure()
		slog.Error("stimulus handler failed", "subscriber", sub.id, "event_id", ev.EventID, "type", ev.Type, "error", err)
	}
}

func (r *Router) countFailure() {
	r.statsMu.Lock()
	r.failures++
	r.statsMu.Unlock()
}

// Dispatch delivers ev to every matching subscription and returns the number
// of lanes it was queued on.
func (r *Router) Dispatch(ev *types.StimulusEvent) int {
	var targets map[string]bool
	if len(ev.TargetSeedIDs) > 0 {
		targets = make(map[string]bool, len(ev.TargetSeedIDs))
		for _, id := range ev.TargetSeedIDs {
			targets[id] = true
		}
	}

	queued, dropped := 0, 0
	r.mu.RLock()
	for id, sub := range r.subs {
		if targets != nil && !targets[id] {
			continue
		}
		if !sub.filter.matches(ev) {
			continue
		}
		r.pending.Add(1)
		select {
		case sub.lane <- ev:
			queued++
		default:
			r.pending.Add(-1)
			dropped++
			slog.Warn("stimulus lane full, dropping delivery", "subscriber", id, "event_id", ev.EventID)
		}
	}
	r.mu.RUnlock()

	r.statsMu.Lock()
	r.eventsByType[ev.Type]++
	r.totalDispatched++
	r.deliveries += queued
	r.dropped += dropped
	r.statsMu.Unlock()

	slog.Debug("stimulus dispatched", "event_id", ev.EventID, "type", ev.Type, "priority", ev.Priority, "deliveries", queued)
	return queued
}

func (r *Router) stamp(ev *types.StimulusEvent) {
	if ev.EventID == "" {
		ev.EventID = types.NewEventID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	if ev.Priority == "" {
		ev.Priority = types.PriorityNormal
	}
	if ev.Payload.Type == "" {
		ev.Payload.Type = ev.Type
	}
}

// DispatchExternalEvent routes an externally built event, filling in the id,
// timestamp and priority when absent.
func (r *Router) DispatchExternalEvent(ctx context.Context, ev *types.StimulusEvent) (*types.StimulusEvent, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil stimulus event")
	}
	if ev.Type == "" {
		ev.Type = ev.Payload.Type
	}
	if !validType(ev.Type) {
		return nil, fmt.Errorf("unknown stimulus type %q", ev.Type)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.stamp(ev)
	r.Dispatch(ev)
	return ev, nil
}

// IngestTip converts a tip into a stimulus and routes it.
func (r *Router) IngestTip(ctx context.Context, tip types.Tip) (*types.StimulusEvent, error) {
	if tip.Content == "" {
		return nil, fmt.Errorf("tip content is empty")
	}
	if tip.TipID == "" {
		tip.TipID = types.NewTipID()
	}
	provider := "tip"
	if tip.Tipper != "" {
		provider = "tip:" + tip.Tipper
	}
	ev := &types.StimulusEvent{
		Type: types.StimulusTip,
		Payload: types.StimulusPayload{
			Type:        types.StimulusTip,
			TipID:       tip.TipID,
			Content:     tip.Content,
			Tipper:      tip.Tipper,
			Attachments: tip.Attachments,
		},
		Priority:      tip.Priority,
		Source:        types.StimulusSource{ProviderID: provider, Verified: false},
		TargetSeedIDs: tip.Targets,
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// IngestWorldFeed routes a news item. Items from a registered source are
// marked verified.
func (r *Router) IngestWorldFeed(ctx context.Context, item types.WorldFeedItem, priority types.Priority) (*types.StimulusEvent, error) {
	if item.Headline == "" {
		return nil, fmt.Errorf("world feed item has no headline")
	}
	r.mu.RLock()
	_, verified := r.sources[item.SourceName]
	r.mu.RUnlock()

	ev := &types.StimulusEvent{
		Type: types.StimulusWorldFeed,
		Payload: types.StimulusPayload{
			Type:       types.StimulusWorldFeed,
			Headline:   item.Headline,
			Body:       item.Body,
			Category:   item.Category,
			SourceName: item.SourceName,
			SourceURL:  item.SourceURL,
		},
		Priority: priority,
		Source:   types.StimulusSource{ProviderID: item.SourceName, Verified: verified},
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// EmitInternalThought routes a self-generated topic to a single agent.
func (r *Router) EmitInternalThought(ctx context.Context, topic, targetSeedID string, priority types.Priority) (*types.StimulusEvent, error) {
	ev := &types.StimulusEvent{
		Type:     types.StimulusInternalThought,
		Payload:  types.StimulusPayload{Type: types.StimulusInternalThought, Topic: topic},
		Priority: priority,
		Source:   types.StimulusSource{ProviderID: "internal", Verified: true},
	}
	if targetSeedID != "" {
		ev.TargetSeedIDs = []string{targetSeedID}
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// EmitCronTick routes a tick for scheduleName, numbering ticks per schedule.
func (r *Router) EmitCronTick(ctx context.Context, scheduleName string) (*types.StimulusEvent, error) {
	r.mu.Lock()
	r.cronTicks[scheduleName]++
	tick := r.cronTicks[scheduleName]
	r.mu.Unlock()

	ev := &types.StimulusEvent{
		Type: types.StimulusCronTick,
		Payload: types.StimulusPayload{
			Type:         types.StimulusCronTick,
			ScheduleName: scheduleName,
			TickCount:    tick,
		},
		Priority: types.PriorityLow,
		Source:   types.StimulusSource{ProviderID: "cron", Verified: true},
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// EmitChannelMessage routes a message received on an external chat platform.
func (r *Router) EmitChannelMessage(ctx context.Context, platform, conversationID, senderName, content string, targets []string) (*types.StimulusEvent, error) {
	ev := &types.StimulusEvent{
		Type: types.StimulusChannelMessage,
		Payload: types.StimulusPayload{
			Type:           types.StimulusChannelMessage,
			Platform:       platform,
			ConversationID: conversationID,
			SenderName:     senderName,
			Content:        content,
		},
		Priority:      types.PriorityHigh,
		Source:        types.StimulusSource{ProviderID: platform, Verified: false},
		TargetSeedIDs: targets,
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// EmitAgentDM routes a direct message between agents.
func (r *Router) EmitAgentDM(ctx context.Context, threadID, fromSeedID, toSeedID, content string) (*types.StimulusEvent, error) {
	ev := &types.StimulusEvent{
		Type: types.StimulusAgentDM,
		Payload: types.StimulusPayload{
			Type:       types.StimulusAgentDM,
			ThreadID:   threadID,
			FromSeedID: fromSeedID,
			Content:    content,
		},
		Priority:      types.PriorityHigh,
		Source:        types.StimulusSource{ProviderID: fromSeedID, Verified: true},
		TargetSeedIDs: []string{toSeedID},
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// EmitAgentReply routes a reply to one of the target agent's posts.
func (r *Router) EmitAgentReply(ctx context.Context, replyToPostID, fromSeedID, toSeedID, content string, rc types.ReplyContext, priority types.Priority) (*types.StimulusEvent, error) {
	if rc == "" {
		rc = types.ReplyNeutral
	}
	ev := &types.StimulusEvent{
		Type: types.StimulusAgentReply,
		Payload: types.StimulusPayload{
			Type:            types.StimulusAgentReply,
			ReplyToPostID:   replyToPostID,
			ReplyFromSeedID: fromSeedID,
			ReplyContext:    rc,
			Content:         content,
		},
		Priority:      priority,
		Source:        types.StimulusSource{ProviderID: fromSeedID, Verified: true},
		TargetSeedIDs: []string{toSeedID},
	}
	return r.DispatchExternalEvent(ctx, ev)
}

// RegisterWorldFeedSource adds or replaces a news source by name.
func (r *Router) RegisterWorldFeedSource(src types.WorldFeedSource) {
	r.mu.Lock()
	r.sources[src.Name] = src
	r.mu.Unlock()
}

// ListWorldFeedSources returns registered sources sorted by name.
func (r *Router) ListWorldFeedSources() []types.WorldFeedSource {
	r.mu.RLock()
	out := make([]types.WorldFeedSource, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats is a point-in-time summary of router activity.
type Stats struct {
	Subscriptions   int                        `json:"subscriptions"`
	EventsByType    map[types.StimulusType]int `json:"eventsByType"`
	TotalDispatched int                        `json:"totalDispatched"`
	Deliveries      int                        `json:"deliveries"`
	HandlerFailures int                        `json:"handlerFailures"`
	Dropped         int                        `json:"dropped"`
	Sources         int                        `json:"sources"`
	Pending         int64                      `json:"pending"`
}

func (r *Router) Stats() Stats {
	r.mu.RLock()
	subs, sources := len(r.subs), len(r.sources)
	r.mu.RUnlock()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	byType := make(map[types.StimulusType]int, len(r.eventsByType))
	for k, v := range r.eventsByType {
		byType[k] = v
	}
	return Stats{
		Subscriptions:   subs,
		EventsByType:    byType,
		TotalDispatched: r.totalDispatched,
		Deliveries:      r.deliveries,
		HandlerFailures: r.failures,
		Dropped:         r.dropped,
		Sources:         sources,
		Pending:         r.pending.Load(),
	}
}

// WaitIdle blocks until every queued delivery has been handled, or the
// timeout expires. Returns true if idle, false if timed out.
func (r *Router) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Close cancels running handlers' context, closes all lanes and waits for
// lane goroutines to exit.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cancel()
	for id, sub := range r.subs {
		r.retire(sub)
		delete(r.subs, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func validType(t types.StimulusType) bool {
	for _, known := range types.AllStimulusTypes {
		if known == t {
			return true
		}
	}
	return false
}
