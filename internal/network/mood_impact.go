// internal/network/mood_impact.go
package network

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/user/wonderland/internal/mood"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

const (
	// fallbackBound caps each axis of the heuristic delta.
	fallbackBound = 0.3
	// impactBound caps each axis after impact weighting.
	impactBound = 0.35
	// minImpact is the L1 magnitude below which a stimulus leaves mood alone.
	minImpact = 0.01
)

var typeWeights = map[types.StimulusType]float64{
	types.StimulusTip:             0.9,
	types.StimulusAgentReply:      0.85,
	types.StimulusChannelMessage:  0.95,
	types.StimulusAgentDM:         0.95,
	types.StimulusWorldFeed:       0.7,
	types.StimulusInternalThought: 0.65,
	types.StimulusCronTick:        0.25,
}

var priorityWeights = map[types.Priority]float64{
	types.PriorityBreaking: 1.3,
	types.PriorityHigh:     1.15,
	types.PriorityNormal:   1,
	types.PriorityLow:      0.7,
}

// ImpactWeight scales how strongly a stimulus moves mood.
func ImpactWeight(ev *types.StimulusEvent) float64 {
	tw, ok := typeWeights[ev.Type]
	if !ok {
		tw = 0.6
	}
	pw, ok := priorityWeights[ev.Priority]
	if !ok {
		pw = 1
	}
	return math.Min(math.Max(tw*pw, 0), 1)
}

// FallbackDelta is the keyword and priority heuristic used when no
// estimator is configured or it fails.
func FallbackDelta(ev *types.StimulusEvent, text string, topics []string) types.MoodDelta {
	var a voice.Analysis
	analyzed := text != ""
	if analyzed {
		a = voice.Analyze(text, topics)
	}

	valence := a.Sentiment * 0.16
	arousal := math.Abs(a.Sentiment)*0.08 + a.Controversy*0.10
	dominance := 0.0

	switch ev.Priority {
	case types.PriorityBreaking:
		arousal += 0.14
		dominance += 0.03
	case types.PriorityHigh:
		arousal += 0.08
	case types.PriorityNormal:
		arousal += 0.03
	default:
		arousal -= 0.02
	}

	switch ev.Type {
	case types.StimulusTip:
		arousal += 0.06
		valence += 0.02
	case types.StimulusAgentReply, types.StimulusAgentDM, types.StimulusChannelMessage:
		arousal += 0.05
		dominance += 0.05
	case types.StimulusWorldFeed, types.StimulusInternalThought:
		dominance += 0.02
	}

	trigger := "priority_heuristic"
	if analyzed {
		trigger = "keyword_sentiment"
	}
	return types.MoodDelta{
		Valence:   clampSigned(valence, fallbackBound),
		Arousal:   clampSigned(arousal, fallbackBound),
		Dominance: clampSigned(dominance, fallbackBound),
		Trigger:   trigger,
	}
}

// ScaleDelta applies the impact weight and renames the trigger after the
// stimulus type.
func ScaleDelta(ev *types.StimulusEvent, d types.MoodDelta) types.MoodDelta {
	w := ImpactWeight(ev)
	return types.MoodDelta{
		Valence:   clampSigned(d.Valence*w, impactBound),
		Arousal:   clampSigned(d.Arousal*w, impactBound),
		Dominance: clampSigned(d.Dominance*w, impactBound),
		Trigger:   fmt.Sprintf("stimulus_%s:%s", ev.Type, d.Trigger),
	}
}

// applyStimulusMoodImpact moves seedID's mood in response to ev before the
// agency sees it.
func (n *Network) applyStimulusMoodImpact(ctx context.Context, seedID string, ev *types.StimulusEvent) {
	current, ok := n.mood.GetState(seedID)
	if !ok {
		return
	}

	n.mu.RLock()
	var traits types.HEXACOTraits
	var topics []string
	if c, ok := n.citizens[seedID]; ok {
		traits = c.Personality
		topics = append(topics, c.SubscribedTopics...)
	}
	estimator := n.estimator
	n.mu.RUnlock()

	text := strings.TrimSpace(voice.StimulusText(ev))
	var raw types.MoodDelta
	estimated := false
	if estimator != nil && text != "" {
		d, err := estimator.EstimateMoodDelta(ctx, voice.EstimateRequest{
			SeedID: seedID,
			Traits: traits,
			Mood:   current,
			Event:  ev,
			Text:   text,
		})
		if err != nil {
			slog.Warn("mood estimator failed, using heuristic", "seed_id", seedID, "event_id", ev.EventID, "error", err)
		} else {
			raw, estimated = d, true
		}
	}
	if !estimated {
		raw = FallbackDelta(ev, text, topics)
	}

	blended := n.inertia.Blend(seedID, mood.ThreadKey(ev), ScaleDelta(ev, raw), n.now())
	if blended.Magnitude() < minImpact {
		slog.Debug("stimulus mood impact below threshold", "seed_id", seedID, "event_id", ev.EventID)
		return
	}
	n.applyMoodDelta(seedID, blended, SourceStimulus)
}
