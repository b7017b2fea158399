// internal/network/telemetry.go
package network

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/user/wonderland/internal/newsroom"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

// MoodSource says what caused a mood update.
type MoodSource string

const (
	SourceStimulus   MoodSource = "stimulus"
	SourceEngagement MoodSource = "engagement"
	SourceEmoji      MoodSource = "emoji"
	SourceSystem     MoodSource = "system"
)

// TelemetryType discriminates TelemetryEvent.
type TelemetryType string

const (
	TelemetryMoodDrift        TelemetryType = "mood_drift"
	TelemetryVoiceProfile     TelemetryType = "voice_profile"
	TelemetryEngagementImpact TelemetryType = "engagement_impact"
)

// engagementDeltaBound caps the accumulated engagement mood delta per axis.
const engagementDeltaBound = 5.0

type PADDelta struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

type MoodTelemetry struct {
	Updates         int             `json:"updates"`
	CumulativeDrift float64         `json:"cumulativeDrift"`
	AverageDrift    float64         `json:"averageDrift"`
	MaxDrift        float64         `json:"maxDrift"`
	LastDrift       float64         `json:"lastDrift"`
	LastTrigger     string          `json:"lastTrigger,omitempty"`
	LastSource      MoodSource      `json:"lastSource,omitempty"`
	LastUpdatedAt   *time.Time      `json:"lastUpdatedAt,omitempty"`
	CurrentState    *types.PADState `json:"currentState,omitempty"`
}

type VoiceTelemetry struct {
	Updates              int                `json:"updates"`
	CurrentArchetype     voice.Archetype    `json:"currentArchetype,omitempty"`
	ArchetypeSwitches    int                `json:"archetypeSwitches"`
	LastStimulusType     types.StimulusType `json:"lastStimulusType,omitempty"`
	LastStimulusPriority types.Priority     `json:"lastStimulusPriority,omitempty"`
	LastUrgency          *float64           `json:"lastUrgency,omitempty"`
	LastSentiment        *float64           `json:"lastSentiment,omitempty"`
	LastControversy      *float64           `json:"lastControversy,omitempty"`
	LastUpdatedAt        *time.Time         `json:"lastUpdatedAt,omitempty"`
}

type EngagementCounts struct {
	Likes          int `json:"likes"`
	Boosts         int `json:"boosts"`
	Replies        int `json:"replies"`
	Views          int `json:"views"`
	EmojiReactions int `json:"emojiReactions"`
}

type EngagementTelemetry struct {
	Received      EngagementCounts `json:"received"`
	MoodDelta     PADDelta         `json:"moodDelta"`
	LastUpdatedAt *time.Time       `json:"lastUpdatedAt,omitempty"`
}

// AgentBehaviorTelemetry aggregates how one agent's mood, voice and
// received engagement evolved.
type AgentBehaviorTelemetry struct {
	SeedID     string              `json:"seedId"`
	Mood       MoodTelemetry       `json:"mood"`
	Voice      VoiceTelemetry      `json:"voice"`
	Engagement EngagementTelemetry `json:"engagement"`
}

// Clone returns a deep copy.
func (t *AgentBehaviorTelemetry) Clone() *AgentBehaviorTelemetry {
	if t == nil {
		return nil
	}
	c := *t
	c.Mood.LastUpdatedAt = cloneTime(t.Mood.LastUpdatedAt)
	if t.Mood.CurrentState != nil {
		st := *t.Mood.CurrentState
		c.Mood.CurrentState = &st
	}
	c.Voice.LastUrgency = cloneFloat(t.Voice.LastUrgency)
	c.Voice.LastSentiment = cloneFloat(t.Voice.LastSentiment)
	c.Voice.LastControversy = cloneFloat(t.Voice.LastControversy)
	c.Voice.LastUpdatedAt = cloneTime(t.Voice.LastUpdatedAt)
	c.Engagement.LastUpdatedAt = cloneTime(t.Engagement.LastUpdatedAt)
	return &c
}

// TelemetryEvent is one behavior update pushed to listeners. Fields are
// populated according to Type.
type TelemetryEvent struct {
	Type      TelemetryType
	SeedID    string
	Timestamp time.Time

	// mood_drift
	Source  MoodSource
	Trigger string
	Drift   float64
	State   types.PADState

	// voice_profile
	Archetype         voice.Archetype
	SwitchedArchetype bool
	PreviousArchetype voice.Archetype
	StimulusType      types.StimulusType
	StimulusPriority  types.Priority
	Urgency           float64
	Sentiment         float64
	Controversy       float64

	// engagement_impact
	Action EngagementAction
	Delta  PADDelta
}

// MarshalJSON encodes only the fields belonging to the event's type.
func (e TelemetryEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TelemetryMoodDrift:
		return json.Marshal(struct {
			Type      TelemetryType  `json:"type"`
			SeedID    string         `json:"seedId"`
			Timestamp time.Time      `json:"timestamp"`
			Source    MoodSource     `json:"source"`
			Trigger   string         `json:"trigger"`
			Drift     float64        `json:"drift"`
			State     types.PADState `json:"state"`
		}{e.Type, e.SeedID, e.Timestamp, e.Source, e.Trigger, e.Drift, e.State})
	case TelemetryVoiceProfile:
		return json.Marshal(struct {
			Type              TelemetryType      `json:"type"`
			SeedID            string             `json:"seedId"`
			Timestamp         time.Time          `json:"timestamp"`
			Archetype         voice.Archetype    `json:"archetype"`
			SwitchedArchetype bool               `json:"switchedArchetype"`
			PreviousArchetype voice.Archetype    `json:"previousArchetype,omitempty"`
			StimulusType      types.StimulusType `json:"stimulusType"`
			StimulusPriority  types.Priority     `json:"stimulusPriority"`
			Urgency           float64            `json:"urgency"`
			Sentiment         float64            `json:"sentiment"`
			Controversy       float64            `json:"controversy"`
		}{e.Type, e.SeedID, e.Timestamp, e.Archetype, e.SwitchedArchetype, e.PreviousArchetype,
			e.StimulusType, e.StimulusPriority, e.Urgency, e.Sentiment, e.Controversy})
	default:
		return json.Marshal(struct {
			Type      TelemetryType    `json:"type"`
			SeedID    string           `json:"seedId"`
			Timestamp time.Time        `json:"timestamp"`
			Action    EngagementAction `json:"action"`
			Delta     PADDelta         `json:"delta"`
		}{e.Type, e.SeedID, e.Timestamp, e.Action, e.Delta})
	}
}

// TelemetryListener receives every telemetry event.
type TelemetryListener func(TelemetryEvent)

// OnTelemetryUpdate registers fn. Listener panics are logged and contained.
func (n *Network) OnTelemetryUpdate(fn TelemetryListener) {
	n.cbMu.Lock()
	n.telemetryListeners = append(n.telemetryListeners, fn)
	n.cbMu.Unlock()
}

// AgentBehaviorTelemetry returns a snapshot for seedID, or nil.
func (n *Network) AgentBehaviorTelemetry(seedID string) *AgentBehaviorTelemetry {
	n.telMu.Lock()
	defer n.telMu.Unlock()
	return n.telemetry[seedID].Clone()
}

// ListBehaviorTelemetry returns snapshots for every tracked agent.
func (n *Network) ListBehaviorTelemetry() []*AgentBehaviorTelemetry {
	n.telMu.Lock()
	defer n.telMu.Unlock()
	out := make([]*AgentBehaviorTelemetry, 0, len(n.telemetry))
	for _, t := range n.telemetry {
		out = append(out, t.Clone())
	}
	sortTelemetry(out)
	return out
}

// ensureTelemetry must be called with telMu held.
func (n *Network) ensureTelemetry(seedID string) *AgentBehaviorTelemetry {
	t, ok := n.telemetry[seedID]
	if !ok {
		t = &AgentBehaviorTelemetry{SeedID: seedID}
		n.telemetry[seedID] = t
	}
	return t
}

func (n *Network) emitTelemetry(ev TelemetryEvent) {
	n.cbMu.RLock()
	listeners := make([]TelemetryListener, len(n.telemetryListeners))
	copy(listeners, n.telemetryListeners)
	n.cbMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("telemetry listener panicked", "seed_id", ev.SeedID, "type", ev.Type, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

// applyMoodDelta applies delta through the mood engine and records the
// resulting drift.
func (n *Network) applyMoodDelta(seedID string, delta types.MoodDelta, source MoodSource) {
	before, after, ok := n.mood.ApplyDeltaChange(seedID, delta)
	if !ok {
		return
	}
	drift := padDistance(before, after)
	now := n.now()

	n.telMu.Lock()
	t := n.ensureTelemetry(seedID)
	t.Mood.Updates++
	t.Mood.CumulativeDrift += drift
	t.Mood.AverageDrift = t.Mood.CumulativeDrift / float64(t.Mood.Updates)
	t.Mood.MaxDrift = math.Max(t.Mood.MaxDrift, drift)
	t.Mood.LastDrift = drift
	t.Mood.LastTrigger = delta.Trigger
	t.Mood.LastSource = source
	t.Mood.LastUpdatedAt = &now
	st := after
	t.Mood.CurrentState = &st
	n.telMu.Unlock()

	n.emitTelemetry(TelemetryEvent{
		Type:      TelemetryMoodDrift,
		SeedID:    seedID,
		Timestamp: now,
		Source:    source,
		Trigger:   delta.Trigger,
		Drift:     drift,
		State:     after,
	})
}

func (n *Network) recordVoiceTelemetry(s newsroom.VoiceSnapshot) {
	p := s.Profile
	n.telMu.Lock()
	t := n.ensureTelemetry(s.SeedID)
	t.Voice.Updates++
	if s.SwitchedArchetype {
		t.Voice.ArchetypeSwitches++
	}
	t.Voice.CurrentArchetype = p.Archetype
	t.Voice.LastStimulusType = s.StimulusType
	t.Voice.LastStimulusPriority = s.StimulusPriority
	t.Voice.LastUrgency = floatPtr(p.Urgency)
	t.Voice.LastSentiment = floatPtr(p.Sentiment)
	t.Voice.LastControversy = floatPtr(p.Controversy)
	ts := s.Timestamp
	t.Voice.LastUpdatedAt = &ts
	n.telMu.Unlock()

	n.emitTelemetry(TelemetryEvent{
		Type:              TelemetryVoiceProfile,
		SeedID:            s.SeedID,
		Timestamp:         s.Timestamp,
		Archetype:         p.Archetype,
		SwitchedArchetype: s.SwitchedArchetype,
		PreviousArchetype: s.PreviousArchetype,
		StimulusType:      s.StimulusType,
		StimulusPriority:  s.StimulusPriority,
		Urgency:           p.Urgency,
		Sentiment:         p.Sentiment,
		Controversy:       p.Controversy,
	})

	if s.SwitchedArchetype {
		n.recordPromptAdaptation(s)
	}
}

func (n *Network) countEngagement(seedID string, action EngagementAction) {
	now := n.now()
	n.telMu.Lock()
	defer n.telMu.Unlock()
	t := n.ensureTelemetry(seedID)
	switch action {
	case ActionLike:
		t.Engagement.Received.Likes++
	case ActionBoost:
		t.Engagement.Received.Boosts++
	case ActionReply:
		t.Engagement.Received.Replies++
	case ActionView:
		t.Engagement.Received.Views++
	case ActionEmojiReaction:
		t.Engagement.Received.EmojiReactions++
	}
	t.Engagement.LastUpdatedAt = &now
}

func (n *Network) recordEngagementDelta(seedID string, delta types.MoodDelta, action EngagementAction) {
	now := n.now()
	n.telMu.Lock()
	t := n.ensureTelemetry(seedID)
	md := &t.Engagement.MoodDelta
	md.Valence = clampSigned(md.Valence+delta.Valence, engagementDeltaBound)
	md.Arousal = clampSigned(md.Arousal+delta.Arousal, engagementDeltaBound)
	md.Dominance = clampSigned(md.Dominance+delta.Dominance, engagementDeltaBound)
	t.Engagement.LastUpdatedAt = &now
	n.telMu.Unlock()

	n.emitTelemetry(TelemetryEvent{
		Type:      TelemetryEngagementImpact,
		SeedID:    seedID,
		Timestamp: now,
		Action:    action,
		Delta:     PADDelta{Valence: delta.Valence, Arousal: delta.Arousal, Dominance: delta.Dominance},
	})
}

func padDistance(a, b types.PADState) float64 {
	dv := b.Valence - a.Valence
	da := b.Arousal - a.Arousal
	dd := b.Dominance - a.Dominance
	return math.Sqrt(dv*dv + da*da + dd*dd)
}

func clampSigned(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

func floatPtr(v float64) *float64 { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
