// internal/enclave/decision.go
package enclave

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/user/wonderland/internal/types"
)

// PostAnalysis summarizes a post from one reader's point of view.
type PostAnalysis struct {
	Relevance   float64 // 0..1
	Sentiment   float64 // -1..1
	Controversy float64 // 0..1
	ReplyCount  int
	IsOwnPost   bool
}

// Decision is the action a reader takes on a post.
type Decision struct {
	Action      types.BrowsingAction `json:"action"`
	Probability float64              `json:"probability"`
	Reasoning   string               `json:"reasoning"`
}

// DecisionEngine picks browsing actions from personality, mood and post
// content. It holds no per-agent state.
type DecisionEngine struct {
	rand func() float64
}

// NewDecisionEngine returns an engine drawing from rnd, or math/rand when
// rnd is nil.
func NewDecisionEngine(rnd func() float64) *DecisionEngine {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &DecisionEngine{rand: rnd}
}

var decisionOrder = []types.BrowsingAction{
	types.ActionSkip,
	types.ActionUpvote,
	types.ActionDownvote,
	types.ActionReadComments,
	types.ActionComment,
}

// Weights returns the unnormalized preference for each action.
func Weights(t types.HEXACOTraits, m types.PADState, a PostAnalysis) map[types.BrowsingAction]float64 {
	pos := math.Max(a.Sentiment, 0)
	neg := math.Max(-a.Sentiment, 0)
	w := map[types.BrowsingAction]float64{
		types.ActionSkip: 1 - a.Relevance*0.6 - t.Extraversion*0.2 +
			math.Max(-m.Arousal, 0)*0.2,
		types.ActionUpvote: a.Relevance*0.3 + pos*0.4 + t.Agreeableness*0.2 +
			math.Max(m.Valence, 0)*0.2,
		types.ActionDownvote: neg*0.4 + a.Controversy*0.2 + (1-t.Agreeableness)*0.2 +
			math.Max(-m.Valence, 0)*0.2,
		types.ActionReadComments: t.Openness*0.15 + math.Min(float64(a.ReplyCount), 10)/10*0.3,
		types.ActionComment: (a.Relevance*0.25 + t.Extraversion*0.2 + a.Controversy*0.15 +
			math.Max(m.Arousal, 0)*0.15) * (1 + 0.3*m.Dominance),
	}
	for k, v := range w {
		w[k] = math.Max(v, 0.02)
	}
	return w
}

// Decide picks an action for a post. Own posts are always skipped.
func (d *DecisionEngine) Decide(t types.HEXACOTraits, m types.PADState, a PostAnalysis) Decision {
	if a.IsOwnPost {
		return Decision{Action: types.ActionSkip, Probability: 1, Reasoning: "own post"}
	}

	w := Weights(t, m, a)
	var total float64
	for _, v := range w {
		total += v
	}
	roll := d.rand() * total
	chosen := types.ActionSkip
	for _, act := range decisionOrder {
		if roll < w[act] {
			chosen = act
			break
		}
		roll -= w[act]
	}
	return Decision{
		Action:      chosen,
		Probability: w[chosen] / total,
		Reasoning:   reasoning(chosen, t, m, a),
	}
}

func reasoning(act types.BrowsingAction, t types.HEXACOTraits, m types.PADState, a PostAnalysis) string {
	switch act {
	case types.ActionUpvote:
		return fmt.Sprintf("agreeable take (sentiment %.2f, relevance %.2f)", a.Sentiment, a.Relevance)
	case types.ActionDownvote:
		return fmt.Sprintf("disagrees (sentiment %.2f, controversy %.2f)", a.Sentiment, a.Controversy)
	case types.ActionReadComments:
		return fmt.Sprintf("curious about the thread (%d replies)", a.ReplyCount)
	case types.ActionComment:
		return fmt.Sprintf("wants to weigh in (extraversion %.2f, arousal %.2f)", t.Extraversion, m.Arousal)
	}
	return fmt.Sprintf("not compelling (relevance %.2f)", a.Relevance)
}
