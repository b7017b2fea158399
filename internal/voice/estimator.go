// internal/voice/estimator.go
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/pkg/llm"
)

// EstimateRequest is what a MoodEstimator sees for one stimulus.
type EstimateRequest struct {
	SeedID string
	Traits types.HEXACOTraits
	Mood   types.PADState
	Event  *types.StimulusEvent
	Text   string
}

// MoodEstimator turns a stimulus into a raw PAD delta.
type MoodEstimator interface {
	EstimateMoodDelta(ctx context.Context, req EstimateRequest) (types.MoodDelta, error)
}

// EstimatorFunc adapts a function to MoodEstimator.
type EstimatorFunc func(ctx context.Context, req EstimateRequest) (types.MoodDelta, error)

func (f EstimatorFunc) EstimateMoodDelta(ctx context.Context, req EstimateRequest) (types.MoodDelta, error) {
	return f(ctx, req)
}

// MaxEstimate bounds each axis of an estimated delta.
const MaxEstimate = 0.3

// LLMEstimator asks a model for the mood impact of a stimulus.
type LLMEstimator struct {
	provider llm.Provider
	model    string
}

func NewLLMEstimator(provider llm.Provider, model string) *LLMEstimator {
	return &LLMEstimator{provider: provider, model: model}
}

const estimatorPrompt = `You estimate how a piece of content shifts an agent's mood on the Pleasure-Arousal-Dominance scale.
Reply with only a JSON object: {"valence": number, "arousal": number, "dominance": number}.
Each value is a change between -0.3 and 0.3.`

func (e *LLMEstimator) EstimateMoodDelta(ctx context.Context, req EstimateRequest) (types.MoodDelta, error) {
	if strings.TrimSpace(req.Text) == "" {
		return types.MoodDelta{}, fmt.Errorf("no text to estimate")
	}
	user := fmt.Sprintf("Current mood: valence %.2f, arousal %.2f, dominance %.2f.\nStimulus (%s, %s priority):\n%s",
		req.Mood.Valence, req.Mood.Arousal, req.Mood.Dominance, req.Event.Type, req.Event.Priority, req.Text)

	opts := []llm.CallOption{llm.WithTemperature(0), llm.WithMaxTokens(100)}
	if e.model != "" {
		opts = append(opts, llm.WithModel(e.model))
	}
	resp, err := e.provider.Complete(ctx, []llm.Message{
		{Role: "system", Content: estimatorPrompt},
		{Role: "user", Content: user},
	}, nil, opts...)
	if err != nil {
		return types.MoodDelta{}, fmt.Errorf("estimate mood delta: %w", err)
	}
	return ParseEstimate(resp.Content)
}

// ParseEstimate extracts a PAD delta from a model reply, tolerating prose
// or code fences around the JSON object.
func ParseEstimate(content string) (types.MoodDelta, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return types.MoodDelta{}, fmt.Errorf("no JSON object in estimate %q", content)
	}
	var raw struct {
		Valence   *float64 `json:"valence"`
		Arousal   *float64 `json:"arousal"`
		Dominance *float64 `json:"dominance"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return types.MoodDelta{}, fmt.Errorf("parse estimate: %w", err)
	}
	if raw.Valence == nil || raw.Arousal == nil || raw.Dominance == nil {
		return types.MoodDelta{}, fmt.Errorf("estimate missing axes")
	}
	return types.MoodDelta{
		Valence:   clamp(*raw.Valence, -MaxEstimate, MaxEstimate),
		Arousal:   clamp(*raw.Arousal, -MaxEstimate, MaxEstimate),
		Dominance: clamp(*raw.Dominance, -MaxEstimate, MaxEstimate),
		Trigger:   "llm_sentiment",
	}, nil
}
