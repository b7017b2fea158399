// internal/mood/engine.go
package mood

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/user/wonderland/internal/types"
)

// DecayRate is the fraction of the distance to baseline recovered per step.
const DecayRate = 0.1

type agentMood struct {
	state    types.PADState
	baseline types.PADState
	traits   types.HEXACOTraits
}

// Engine owns the PAD state of every registered agent. It is the only
// writer of that state.
type Engine struct {
	mu     sync.RWMutex
	agents map[string]*agentMood
	store  types.MoodStore
}

func NewEngine() *Engine {
	return &Engine{agents: make(map[string]*agentMood)}
}

// SetStore attaches a persistence adapter. A nil store keeps state in memory.
func (e *Engine) SetStore(store types.MoodStore) {
	e.mu.Lock()
	e.store = store
	e.mu.Unlock()
}

// Baseline derives the resting PAD vector for a personality. Traits are
// centered on 0.5 so an all-average personality rests at neutral.
func Baseline(t types.HEXACOTraits) types.PADState {
	h := t.HonestyHumility - 0.5
	e := t.Emotionality - 0.5
	x := t.Extraversion - 0.5
	a := t.Agreeableness - 0.5
	c := t.Conscientiousness - 0.5
	o := t.Openness - 0.5
	return types.PADState{
		Valence:   clamp(0.4*x+0.3*a+0.2*h-0.3*e, -1, 1),
		Arousal:   clamp(0.5*x+0.3*e+0.2*o, -1, 1),
		Dominance: clamp(0.4*x-0.3*a+0.2*c-0.2*e, -1, 1),
	}
}

// InitializeAgent registers seedID with a baseline derived from traits and
// resets its state to that baseline.
func (e *Engine) InitializeAgent(seedID string, traits types.HEXACOTraits) types.PADState {
	base := Baseline(traits)
	e.mu.Lock()
	e.agents[seedID] = &agentMood{state: base, baseline: base, traits: traits}
	e.mu.Unlock()
	return base
}

// LoadFromPersistence restores seedID's state from the store, falling back
// to InitializeAgent when nothing is stored or no store is attached.
func (e *Engine) LoadFromPersistence(ctx context.Context, seedID string, traits types.HEXACOTraits) types.PADState {
	e.mu.RLock()
	store := e.store
	e.mu.RUnlock()
	if store == nil {
		return e.InitializeAgent(seedID, traits)
	}

	state, baseline, err := store.LoadMood(ctx, seedID)
	if err != nil {
		slog.Warn("failed to load mood, using baseline", "seed_id", seedID, "error", err)
	}
	if err != nil || state == nil {
		base := e.InitializeAgent(seedID, traits)
		e.persist(ctx, seedID)
		return base
	}

	base := Baseline(traits)
	if baseline != nil {
		base = *baseline
	}
	st := clampState(*state)
	e.mu.Lock()
	e.agents[seedID] = &agentMood{state: st, baseline: base, traits: traits}
	e.mu.Unlock()
	return st
}

// Remove forgets seedID.
func (e *Engine) Remove(seedID string) {
	e.mu.Lock()
	delete(e.agents, seedID)
	e.mu.Unlock()
}

// ApplyDelta adds delta to seedID's state, clamping each axis to [-1,1].
// Unknown seeds are ignored. Returns the new state and whether it applied.
func (e *Engine) ApplyDelta(seedID string, delta types.MoodDelta) (types.PADState, bool) {
	_, after, ok := e.ApplyDeltaChange(seedID, delta)
	return after, ok
}

// ApplyDeltaChange is ApplyDelta that also returns the state the delta was
// applied to. Both states come from the same critical section.
func (e *Engine) ApplyDeltaChange(seedID string, delta types.MoodDelta) (before, after types.PADState, ok bool) {
	e.mu.Lock()
	m, ok := e.agents[seedID]
	if !ok {
		e.mu.Unlock()
		return types.PADState{}, types.PADState{}, false
	}
	before = m.state
	m.state = clampState(types.PADState{
		Valence:   m.state.Valence + delta.Valence,
		Arousal:   m.state.Arousal + delta.Arousal,
		Dominance: m.state.Dominance + delta.Dominance,
	})
	after = m.state
	e.mu.Unlock()

	slog.Debug("mood delta applied", "seed_id", seedID, "trigger", delta.Trigger,
		"valence", after.Valence, "arousal", after.Arousal, "dominance", after.Dominance)
	e.persist(context.Background(), seedID)
	return before, after, true
}

// DecayToBaseline pulls seedID's state toward its baseline. Each step
// recovers DecayRate of the remaining distance.
func (e *Engine) DecayToBaseline(seedID string, steps int) (types.PADState, bool) {
	if steps <= 0 {
		return e.GetState(seedID)
	}
	e.mu.Lock()
	m, ok := e.agents[seedID]
	if !ok {
		e.mu.Unlock()
		return types.PADState{}, false
	}
	keep := math.Pow(1-DecayRate, float64(steps))
	m.state = types.PADState{
		Valence:   m.baseline.Valence + (m.state.Valence-m.baseline.Valence)*keep,
		Arousal:   m.baseline.Arousal + (m.state.Arousal-m.baseline.Arousal)*keep,
		Dominance: m.baseline.Dominance + (m.state.Dominance-m.baseline.Dominance)*keep,
	}
	st := m.state
	e.mu.Unlock()

	e.persist(context.Background(), seedID)
	return st, true
}

func (e *Engine) GetState(seedID string) (types.PADState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.agents[seedID]
	if !ok {
		return types.PADState{}, false
	}
	return m.state, true
}

func (e *Engine) GetBaseline(seedID string) (types.PADState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.agents[seedID]
	if !ok {
		return types.PADState{}, false
	}
	return m.baseline, true
}

// GetMoodLabel returns the discrete label for seedID's current state, or
// neutral for unknown seeds.
func (e *Engine) GetMoodLabel(seedID string) types.MoodLabel {
	st, ok := e.GetState(seedID)
	if !ok {
		return types.MoodNeutral
	}
	return Label(st)
}

// Has reports whether seedID is registered.
func (e *Engine) Has(seedID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.agents[seedID]
	return ok
}

func (e *Engine) persist(ctx context.Context, seedID string) {
	e.mu.RLock()
	store := e.store
	m, ok := e.agents[seedID]
	var st, base types.PADState
	if ok {
		st, base = m.state, m.baseline
	}
	e.mu.RUnlock()
	if store == nil || !ok {
		return
	}
	if err := store.SaveMood(ctx, seedID, st, base); err != nil {
		slog.Warn("failed to persist mood", "seed_id", seedID, "error", err)
	}
}

func clampState(s types.PADState) types.PADState {
	return types.PADState{
		Valence:   clamp(s.Valence, -1, 1),
		Arousal:   clamp(s.Arousal, -1, 1),
		Dominance: clamp(s.Dominance, -1, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
