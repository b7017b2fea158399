// internal/mood/engine_test.go
package mood

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/user/wonderland/internal/types"
)

func neutralTraits() types.HEXACOTraits {
	return types.HEXACOTraits{
		HonestyHumility:   0.5,
		Emotionality:      0.5,
		Extraversion:      0.5,
		Agreeableness:     0.5,
		Conscientiousness: 0.5,
		Openness:          0.5,
	}
}

func TestBaselineNeutralForAverageTraits(t *testing.T) {
	b := Baseline(neutralTraits())
	if b != (types.PADState{}) {
		t.Errorf("expected neutral baseline, got %+v", b)
	}
}

func TestBaselineExtravertIsActivated(t *testing.T) {
	b := Baseline(types.HEXACOTraits{Extraversion: 0.95, Agreeableness: 0.2, Emotionality: 0.5, HonestyHumility: 0.5, Conscientiousness: 0.5, Openness: 0.5})
	if b.Arousal <= 0 || b.Dominance <= 0 {
		t.Errorf("expected positive arousal and dominance, got %+v", b)
	}
}

func TestApplyDeltaUnknownSeedIsNoop(t *testing.T) {
	e := NewEngine()
	if _, ok := e.ApplyDelta("ghost", types.MoodDelta{Valence: 0.5}); ok {
		t.Error("expected no-op for unknown seed")
	}
	if e.GetMoodLabel("ghost") != types.MoodNeutral {
		t.Error("unknown seed should read as neutral")
	}
}

func TestApplyDeltaStaysInBounds(t *testing.T) {
	e := NewEngine()
	e.InitializeAgent("a", neutralTraits())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		d := types.MoodDelta{
			Valence:   rng.Float64()*4 - 2,
			Arousal:   rng.Float64()*4 - 2,
			Dominance: rng.Float64()*4 - 2,
		}
		st, _ := e.ApplyDelta("a", d)
		for _, v := range []float64{st.Valence, st.Arousal, st.Dominance} {
			if v < -1 || v > 1 {
				t.Fatalf("axis out of bounds after %d deltas: %+v", i, st)
			}
		}
	}
}

func TestApplyDeltaChangeIsAtomic(t *testing.T) {
	e := NewEngine()
	start := e.InitializeAgent("a", neutralTraits())

	const workers, each = 8, 50
	var mu sync.Mutex
	var sum float64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				before, after, ok := e.ApplyDeltaChange("a", types.MoodDelta{Valence: 0.001})
				if !ok {
					t.Error("expected delta to apply")
					return
				}
				mu.Lock()
				sum += after.Valence - before.Valence
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	end, _ := e.GetState("a")
	if math.Abs(sum-(end.Valence-start.Valence)) > 1e-9 {
		t.Errorf("per-call changes sum to %v, state moved %v", sum, end.Valence-start.Valence)
	}
	if math.Abs(sum-workers*each*0.001) > 1e-9 {
		t.Errorf("expected every change to be 0.001, total %v", sum)
	}
	if _, _, ok := e.ApplyDeltaChange("ghost", types.MoodDelta{Valence: 1}); ok {
		t.Error("unknown seed should not apply")
	}
}

func TestDecayToBaseline(t *testing.T) {
	e := NewEngine()
	base := e.InitializeAgent("a", neutralTraits())
	e.ApplyDelta("a", types.MoodDelta{Valence: 1})

	st, _ := e.DecayToBaseline("a", 1)
	if math.Abs(st.Valence-0.9) > 1e-9 {
		t.Errorf("expected 0.9 after one step, got %v", st.Valence)
	}
	st, _ = e.DecayToBaseline("a", 200)
	if math.Abs(st.Valence-base.Valence) > 1e-6 {
		t.Errorf("expected convergence to baseline, got %v", st.Valence)
	}
}

func TestLabels(t *testing.T) {
	cases := []struct {
		state types.PADState
		want  types.MoodLabel
	}{
		{types.PADState{Valence: 0.5, Arousal: 0.5}, types.MoodExcited},
		{types.PADState{Valence: 0.5, Arousal: -0.5}, types.MoodSerene},
		{types.PADState{Valence: 0.5}, types.MoodContent},
		{types.PADState{Valence: -0.5, Arousal: 0.5, Dominance: 0.5}, types.MoodAgitated},
		{types.PADState{Valence: -0.5, Arousal: 0.5, Dominance: -0.5}, types.MoodFrustrated},
		{types.PADState{Valence: -0.5, Arousal: -0.5}, types.MoodSomber},
		{types.PADState{Dominance: 0.5}, types.MoodAssertive},
		{types.PADState{Arousal: 0.5}, types.MoodCurious},
		{types.PADState{Arousal: -0.5}, types.MoodBored},
		{types.PADState{}, types.MoodNeutral},
	}
	for _, tc := range cases {
		if got := Label(tc.state); got != tc.want {
			t.Errorf("Label(%+v) = %s, want %s", tc.state, got, tc.want)
		}
	}
}

type memStore struct {
	state, base *types.PADState
	saves       int
	loadErr     error
}

func (m *memStore) SaveMood(_ context.Context, _ string, state, baseline types.PADState) error {
	m.state, m.base = &state, &baseline
	m.saves++
	return nil
}

func (m *memStore) LoadMood(context.Context, string) (*types.PADState, *types.PADState, error) {
	return m.state, m.base, m.loadErr
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := &memStore{}
	e := NewEngine()
	e.SetStore(store)
	e.LoadFromPersistence(context.Background(), "a", neutralTraits())
	e.ApplyDelta("a", types.MoodDelta{Valence: 0.3, Arousal: -0.2})
	if store.saves < 2 {
		t.Errorf("expected writes through the store, got %d", store.saves)
	}

	restored := NewEngine()
	restored.SetStore(store)
	st := restored.LoadFromPersistence(context.Background(), "a", neutralTraits())
	if math.Abs(st.Valence-0.3) > 1e-9 || math.Abs(st.Arousal+0.2) > 1e-9 {
		t.Errorf("expected restored state, got %+v", st)
	}
}

func TestLoadFailureFallsBackToBaseline(t *testing.T) {
	e := NewEngine()
	e.SetStore(&memStore{loadErr: errors.New("disk gone")})
	st := e.LoadFromPersistence(context.Background(), "a", neutralTraits())
	if st != (types.PADState{}) {
		t.Errorf("expected baseline, got %+v", st)
	}
	if !e.Has("a") {
		t.Error("agent should be registered")
	}
}
