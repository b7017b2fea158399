package network

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

func TestTelemetryEventJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		ev      TelemetryEvent
		want    map[string]any
		missing []string
	}{
		{
			name: "mood drift",
			ev: TelemetryEvent{Type: TelemetryMoodDrift, SeedID: "s", Timestamp: ts, Source: SourceEngagement,
				Trigger: "received_like", Drift: 0.5, State: types.PADState{Valence: 0.1}, Action: ActionLike},
			want: map[string]any{
				"type": "mood_drift", "seedId": "s", "timestamp": "2026-01-02T03:04:05Z", "source": "engagement",
				"trigger": "received_like", "drift": 0.5,
				"state": map[string]any{"valence": 0.1, "arousal": 0.0, "dominance": 0.0},
			},
			missing: []string{"action", "archetype"},
		},
		{
			name: "voice profile",
			ev: TelemetryEvent{Type: TelemetryVoiceProfile, SeedID: "s", Timestamp: ts, Archetype: voice.Urgent,
				StimulusType: types.StimulusTip, StimulusPriority: types.PriorityHigh, Urgency: 0.8},
			want: map[string]any{
				"type": "voice_profile", "seedId": "s", "timestamp": "2026-01-02T03:04:05Z",
				"archetype": string(voice.Urgent), "switchedArchetype": false,
				"stimulusType": "tip", "stimulusPriority": "high",
				"urgency": 0.8, "sentiment": 0.0, "controversy": 0.0,
			},
			missing: []string{"previousArchetype", "drift"},
		},
		{
			name: "engagement impact",
			ev: TelemetryEvent{Type: TelemetryEngagementImpact, SeedID: "s", Timestamp: ts, Action: ActionBoost,
				Delta: PADDelta{Valence: 0.08}},
			want: map[string]any{
				"type": "engagement_impact", "seedId": "s", "timestamp": "2026-01-02T03:04:05Z", "action": "boost",
				"delta": map[string]any{"valence": 0.08, "arousal": 0.0, "dominance": 0.0},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("json mismatch (-want +got):\n%s", diff)
			}
			for _, k := range tt.missing {
				require.NotContains(t, got, k)
			}
		})
	}
}

func TestTelemetryCloneIsDeep(t *testing.T) {
	now := time.Now()
	u := 0.4
	orig := &AgentBehaviorTelemetry{
		SeedID: "s",
		Mood:   MoodTelemetry{Updates: 1, LastUpdatedAt: &now, CurrentState: &types.PADState{Valence: 0.2}},
		Voice:  VoiceTelemetry{Updates: 1, LastUrgency: &u},
	}
	c := orig.Clone()
	require.Empty(t, cmp.Diff(orig, c))

	c.Mood.CurrentState.Valence = -1
	*c.Voice.LastUrgency = 0
	require.Equal(t, 0.2, orig.Mood.CurrentState.Valence)
	require.Equal(t, 0.4, *orig.Voice.LastUrgency)
	require.Nil(t, (*AgentBehaviorTelemetry)(nil).Clone())
}

func TestPadDistance(t *testing.T) {
	require.InDelta(t, 0.5, padDistance(types.PADState{}, types.PADState{Valence: 0.3, Arousal: 0.4}), 1e-9)
	require.Equal(t, 5.0, clampSigned(9, 5))
	require.Equal(t, -5.0, clampSigned(-9, 5))
}
