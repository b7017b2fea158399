// internal/newsroom/agency.go
package newsroom

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/user/wonderland/internal/budget"
	"github.com/user/wonderland/internal/firewall"
	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/tools"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
	"github.com/user/wonderland/pkg/llm"
)

const (
	// MaxToolRounds bounds the writer's model/tool loop.
	MaxToolRounds = 3
	// DefaultModel is used when the seed names none.
	DefaultModel = "gpt-4o-mini"
	// DefaultToolOutputTokens caps each tool result fed back to the model.
	DefaultToolOutputTokens = 2000

	rateWindow = time.Hour
)

// MoodSnapshot is the agent's mood as seen by the writer.
type MoodSnapshot struct {
	Label types.MoodLabel
	State *types.PADState
}

// MoodSnapshotProvider returns the agent's current mood.
type MoodSnapshotProvider func() MoodSnapshot

// VoiceSnapshot is emitted each time the writer builds a voice profile.
type VoiceSnapshot struct {
	SeedID            string             `json:"seedId"`
	Timestamp         time.Time          `json:"timestamp"`
	StimulusEventID   string             `json:"stimulusEventId"`
	StimulusType      types.StimulusType `json:"stimulusType"`
	StimulusPriority  types.Priority     `json:"stimulusPriority"`
	PreviousArchetype voice.Archetype    `json:"previousArchetype,omitempty"`
	SwitchedArchetype bool               `json:"switchedArchetype"`
	Profile           voice.Profile      `json:"profile"`
	MoodLabel         types.MoodLabel    `json:"moodLabel,omitempty"`
	MoodState         *types.PADState    `json:"moodState,omitempty"`
}

type (
	PublishFunc  func(ctx context.Context, post *types.WonderlandPost) error
	ApprovalFunc func(ctx context.Context, entry *types.ApprovalQueueEntry) error
	VoiceFunc    func(snapshot VoiceSnapshot)
	DecisionFunc func(entry *types.ApprovalQueueEntry)
)

// Options holds the agency's injectable collaborators. Zero values select
// production defaults.
type Options struct {
	Signer           manifest.Signer
	Now              func() time.Time
	Rand             func() float64
	Budget           *budget.Counter
	ToolOutputTokens int
}

// Agency runs one citizen's Observer, Writer and Publisher phases and owns
// its pending approvals and hourly post counter.
type Agency struct {
	cfg      types.NewsroomConfig
	firewall *firewall.Firewall
	tools    *tools.Registry
	signer   manifest.Signer
	now      func() time.Time
	rand     func() float64
	budget   *budget.Counter
	toolCap  int

	mu            sync.Mutex
	provider      llm.Provider
	moodProvider  MoodSnapshotProvider
	pending       map[string]*types.ApprovalQueueEntry
	postsThisHour int
	resetAt       time.Time
	lastArchetype voice.Archetype

	cbMu       sync.RWMutex
	onPublish  []PublishFunc
	onApproval []ApprovalFunc
	onVoice    []VoiceFunc
	onDecision []DecisionFunc
}

// New creates an agency for cfg.
func New(cfg types.NewsroomConfig, opts Options) *Agency {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.ToolOutputTokens <= 0 {
		opts.ToolOutputTokens = DefaultToolOutputTokens
	}
	if cfg.MaxPostsPerHour <= 0 {
		cfg.MaxPostsPerHour = 10
	}
	return &Agency{
		cfg:      cfg,
		firewall: firewall.New(cfg.Seed.SeedID, cfg.Seed.ToolAccessProfile),
		tools:    tools.NewRegistry(),
		signer:   opts.Signer,
		now:      opts.Now,
		rand:     opts.Rand,
		budget:   opts.Budget,
		toolCap:  opts.ToolOutputTokens,
		pending:  make(map[string]*types.ApprovalQueueEntry),
		resetAt:  opts.Now().Add(rateWindow),
	}
}

func (a *Agency) SeedID() string               { return a.cfg.Seed.SeedID }
func (a *Agency) Config() types.NewsroomConfig { return a.cfg }
func (a *Agency) Firewall() *firewall.Firewall { return a.firewall }
func (a *Agency) RegisteredTools() []string    { return a.tools.Names() }
func (a *Agency) HasTool(name string) bool     { return a.tools.Has(name) }

// SetLLM switches the writer to model-backed drafting. A nil provider
// restores placeholder drafting.
func (a *Agency) SetLLM(p llm.Provider) {
	a.mu.Lock()
	a.provider = p
	a.mu.Unlock()
}

func (a *Agency) SetMoodSnapshotProvider(p MoodSnapshotProvider) {
	a.mu.Lock()
	a.moodProvider = p
	a.mu.Unlock()
}

// RegisterTools offers tools to the writer. Tools the firewall does not
// allow are ignored.
func (a *Agency) RegisterTools(list []tools.Tool) {
	for _, t := range list {
		if !a.firewall.IsToolAllowed(t.Name()) {
			slog.Debug("tool blocked by firewall", "seed_id", a.SeedID(), "tool", t.Name())
			continue
		}
		a.tools.Register(t)
	}
}

func (a *Agency) OnPublish(cb PublishFunc) {
	a.cbMu.Lock()
	a.onPublish = append(a.onPublish, cb)
	a.cbMu.Unlock()
}

func (a *Agency) OnApprovalRequired(cb ApprovalFunc) {
	a.cbMu.Lock()
	a.onApproval = append(a.onApproval, cb)
	a.cbMu.Unlock()
}

func (a *Agency) OnVoiceProfile(cb VoiceFunc) {
	a.cbMu.Lock()
	a.onVoice = append(a.onVoice, cb)
	a.cbMu.Unlock()
}

// OnDecision is called once an approval entry reaches a terminal state.
func (a *Agency) OnDecision(cb DecisionFunc) {
	a.cbMu.Lock()
	a.onDecision = append(a.onDecision, cb)
	a.cbMu.Unlock()
}

// ProcessStimulus runs the pipeline for ev. It returns nil when the
// stimulus was rate limited, filtered, or produced no draft. A pending post
// is returned when approval is required.
func (a *Agency) ProcessStimulus(ctx context.Context, ev *types.StimulusEvent) (*types.WonderlandPost, error) {
	seedID := a.SeedID()
	if !a.checkRateLimit() {
		slog.Info("rate limit reached, skipping stimulus", "seed_id", seedID, "max_per_hour", a.cfg.MaxPostsPerHour, "event_id", ev.EventID)
		return nil, nil
	}

	mb := manifest.NewBuilder(seedID, a.signer, a.now)
	mb.RecordStimulus(ev)

	obs := a.observe(ev, mb)
	if !obs.react {
		slog.Debug("observer filtered stimulus", "seed_id", seedID, "event_id", ev.EventID, "reason", obs.reason)
		return nil, nil
	}

	content, ok := a.write(ctx, ev, obs.topic, mb)
	if !ok {
		return nil, nil
	}
	return a.publish(ctx, content, ev, mb)
}

func (a *Agency) checkRateLimit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollWindowLocked(a.now())
	return a.postsThisHour < a.cfg.MaxPostsPerHour
}

// rollWindowLocked resets the hourly counter once the window has passed.
// Callers hold a.mu.
func (a *Agency) rollWindowLocked(now time.Time) {
	if now.After(a.resetAt) {
		a.postsThisHour = 0
		a.resetAt = now.Add(rateWindow)
	}
}

// reservePublishLocked counts one publication against the hourly cap and
// reports whether there was room. Callers hold a.mu.
func (a *Agency) reservePublishLocked(now time.Time) bool {
	a.rollWindowLocked(now)
	if a.postsThisHour >= a.cfg.MaxPostsPerHour {
		return false
	}
	a.postsThisHour++
	return true
}

// PostsThisHour returns the current value of the hourly counter.
func (a *Agency) PostsThisHour() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.postsThisHour
}

// PendingApprovals returns copies of the pending entries, oldest first.
func (a *Agency) PendingApprovals() []*types.ApprovalQueueEntry {
	a.mu.Lock()
	out := make([]*types.ApprovalQueueEntry, 0, len(a.pending))
	for _, e := range a.pending {
		c := *e
		out = append(out, &c)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

func (a *Agency) emitPublish(ctx context.Context, post *types.WonderlandPost) {
	a.cbMu.RLock()
	cbs := append([]PublishFunc(nil), a.onPublish...)
	a.cbMu.RUnlock()
	for _, cb := range cbs {
		isolate(a.SeedID(), "publish", func() error { return cb(ctx, post) })
	}
}

func (a *Agency) emitApproval(ctx context.Context, entry *types.ApprovalQueueEntry) {
	a.cbMu.RLock()
	cbs := append([]ApprovalFunc(nil), a.onApproval...)
	a.cbMu.RUnlock()
	for _, cb := range cbs {
		c := *entry
		isolate(a.SeedID(), "approval", func() error { return cb(ctx, &c) })
	}
}

func (a *Agency) emitVoice(s VoiceSnapshot) {
	a.cbMu.RLock()
	cbs := append([]VoiceFunc(nil), a.onVoice...)
	a.cbMu.RUnlock()
	for _, cb := range cbs {
		isolate(a.SeedID(), "voice", func() error { cb(s); return nil })
	}
}

func (a *Agency) emitDecision(entry *types.ApprovalQueueEntry) {
	a.cbMu.RLock()
	cbs := append([]DecisionFunc(nil), a.onDecision...)
	a.cbMu.RUnlock()
	for _, cb := range cbs {
		c := *entry
		isolate(a.SeedID(), "decision", func() error { cb(&c); return nil })
	}
}

// isolate runs a listener, logging its error or panic instead of
// propagating it.
func isolate(seedID, kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("newsroom callback panicked", "seed_id", seedID, "callback", kind, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		slog.Error("newsroom callback failed", "seed_id", seedID, "callback", kind, "error", err)
	}
}
