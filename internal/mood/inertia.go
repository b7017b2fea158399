// internal/mood/inertia.go
package mood

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/wonderland/internal/types"
)

const (
	GlobalHalfLife = 18 * time.Minute
	ThreadHalfLife = 7 * time.Minute
	MaxThreads     = 48

	// Blend weights for the incoming delta, the thread vector and the
	// global vector.
	blendDelta  = 0.72
	blendThread = 0.18
	blendGlobal = 0.10

	globalRetain = 0.78
	threadRetain = 0.6

	// InertiaBound caps each axis of blended deltas and inertia vectors.
	InertiaBound = 0.35
)

type vector struct {
	v, a, d   float64
	updatedAt time.Time
}

func (x vector) decayed(now time.Time, halfLife time.Duration) vector {
	if x.updatedAt.IsZero() {
		return vector{}
	}
	elapsed := now.Sub(x.updatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	k := math.Pow(0.5, float64(elapsed)/float64(halfLife))
	return vector{v: x.v * k, a: x.a * k, d: x.d * k, updatedAt: x.updatedAt}
}

type seedInertia struct {
	global  vector
	threads map[string]vector
}

// Inertia keeps, per agent, a global decaying mood vector and a bounded set
// of per-thread vectors. Blending an incoming delta with them lets related
// events build a decaying arc instead of isolated jolts.
type Inertia struct {
	mu    sync.Mutex
	seeds map[string]*seedInertia
}

func NewInertia() *Inertia {
	return &Inertia{seeds: make(map[string]*seedInertia)}
}

// Ensure creates empty inertia state for seedID if absent.
func (in *Inertia) Ensure(seedID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ensure(seedID)
}

func (in *Inertia) ensure(seedID string) *seedInertia {
	s, ok := in.seeds[seedID]
	if !ok {
		s = &seedInertia{threads: make(map[string]vector)}
		in.seeds[seedID] = s
	}
	return s
}

// Forget drops all inertia state for seedID.
func (in *Inertia) Forget(seedID string) {
	in.mu.Lock()
	delete(in.seeds, seedID)
	in.mu.Unlock()
}

// Blend mixes delta with the decayed thread and global vectors for seedID,
// then folds the result back into both vectors. The returned delta carries
// the original trigger with an ":inertia" suffix.
func (in *Inertia) Blend(seedID, threadKey string, delta types.MoodDelta, now time.Time) types.MoodDelta {
	in.mu.Lock()
	defer in.mu.Unlock()

	s := in.ensure(seedID)
	global := s.global.decayed(now, GlobalHalfLife)
	thread := s.threads[threadKey].decayed(now, ThreadHalfLife)

	blended := vector{
		v: bound(blendDelta*delta.Valence + blendThread*thread.v + blendGlobal*global.v),
		a: bound(blendDelta*delta.Arousal + blendThread*thread.a + blendGlobal*global.a),
		d: bound(blendDelta*delta.Dominance + blendThread*thread.d + blendGlobal*global.d),
	}

	s.global = vector{
		v:         bound(globalRetain*global.v + (1-globalRetain)*blended.v),
		a:         bound(globalRetain*global.a + (1-globalRetain)*blended.a),
		d:         bound(globalRetain*global.d + (1-globalRetain)*blended.d),
		updatedAt: now,
	}
	s.threads[threadKey] = vector{
		v:         bound(threadRetain*thread.v + (1-threadRetain)*blended.v),
		a:         bound(threadRetain*thread.a + (1-threadRetain)*blended.a),
		d:         bound(threadRetain*thread.d + (1-threadRetain)*blended.d),
		updatedAt: now,
	}
	evictOldest(s.threads)

	trigger := delta.Trigger
	if trigger == "" {
		trigger = "stimulus"
	}
	return types.MoodDelta{
		Valence:   blended.v,
		Arousal:   blended.a,
		Dominance: blended.d,
		Trigger:   trigger + ":inertia",
	}
}

// Peek returns the decayed thread and global vectors for seedID at now
// without modifying them.
func (in *Inertia) Peek(seedID, threadKey string, now time.Time) (thread, global types.PADState) {
	in.mu.Lock()
	defer in.mu.Unlock()
	s, ok := in.seeds[seedID]
	if !ok {
		return types.PADState{}, types.PADState{}
	}
	t := s.threads[threadKey].decayed(now, ThreadHalfLife)
	g := s.global.decayed(now, GlobalHalfLife)
	return types.PADState{Valence: t.v, Arousal: t.a, Dominance: t.d},
		types.PADState{Valence: g.v, Arousal: g.a, Dominance: g.d}
}

// ThreadCount returns how many thread vectors seedID holds.
func (in *Inertia) ThreadCount(seedID string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.seeds[seedID]; ok {
		return len(s.threads)
	}
	return 0
}

func evictOldest(threads map[string]vector) {
	if len(threads) <= MaxThreads {
		return
	}
	keys := make([]string, 0, len(threads))
	for k := range threads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return threads[keys[i]].updatedAt.Before(threads[keys[j]].updatedAt)
	})
	for _, k := range keys[:len(threads)-MaxThreads] {
		delete(threads, k)
	}
}

// ThreadKey derives the inertia thread a stimulus belongs to.
func ThreadKey(ev *types.StimulusEvent) string {
	p := ev.Payload
	switch ev.Type {
	case types.StimulusAgentReply:
		if p.ReplyToPostID != "" {
			return types.NewThreadKey("post", p.ReplyToPostID)
		}
	case types.StimulusAgentDM:
		if p.ThreadID != "" {
			return types.NewThreadKey("dm", p.ThreadID)
		}
	case types.StimulusChannelMessage:
		return types.NewThreadKey("channel", p.Platform, p.ConversationID)
	case types.StimulusTip:
		if p.TipID != "" {
			return types.NewThreadKey("tip", p.TipID)
		}
	case types.StimulusWorldFeed:
		return types.NewThreadKey("news", p.SourceName, p.Category)
	case types.StimulusInternalThought:
		topic := p.Topic
		if len(topic) > 40 {
			topic = topic[:40]
		}
		return types.NewThreadKey("thought", strings.ToLower(topic))
	case types.StimulusCronTick:
		return types.NewThreadKey("cron", p.ScheduleName)
	}
	return string(ev.Type)
}

func bound(x float64) float64 {
	return clamp(x, -InertiaBound, InertiaBound)
}
