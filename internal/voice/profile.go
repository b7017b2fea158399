// internal/voice/profile.go
package voice

import (
	"fmt"
	"math"
	"strings"

	"github.com/user/wonderland/internal/types"
)

type Archetype string

const (
	Combative     Archetype = "combative"
	Analytical    Archetype = "analytical"
	Urgent        Archetype = "urgent"
	Enthusiastic  Archetype = "enthusiastic"
	Empathetic    Archetype = "empathetic"
	Contemplative Archetype = "contemplative"
)

// Archetypes in tie-break order.
var Archetypes = []Archetype{Analytical, Contemplative, Empathetic, Enthusiastic, Urgent, Combative}

// Profile is the voice an agent should write in for one stimulus.
type Profile struct {
	Archetype    Archetype             `json:"archetype"`
	Scores       map[Archetype]float64 `json:"scores"`
	StimulusType types.StimulusType    `json:"stimulusType"`
	Priority     types.Priority        `json:"stimulusPriority"`
	Urgency      float64               `json:"urgency"`
	Sentiment    float64               `json:"sentiment"`
	Controversy  float64               `json:"controversy"`
	Directives   []string              `json:"directives"`
}

// Input is everything a voice profile is derived from.
type Input struct {
	Traits types.HEXACOTraits
	Mood   types.PADState
	Event  *types.StimulusEvent
	Topics []string
}

// BuildProfile computes the voice profile for a stimulus. It is a pure
// function of its input.
func BuildProfile(in Input) Profile {
	text := StimulusText(in.Event)
	an := Analyze(text, in.Topics)
	u := Urgency(in.Event)
	scores := Score(in.Traits, in.Mood, u, an.Sentiment, an.Controversy)

	best := Archetypes[0]
	for _, a := range Archetypes[1:] {
		if scores[a] > scores[best] {
			best = a
		}
	}

	return Profile{
		Archetype:    best,
		Scores:       scores,
		StimulusType: in.Event.Type,
		Priority:     in.Event.Priority,
		Urgency:      round3(u),
		Sentiment:    round3(an.Sentiment),
		Controversy:  round3(an.Controversy),
		Directives:   directives(best, u, in.Mood),
	}
}

// Score rates each archetype for the given personality, mood and stimulus
// reading.
func Score(t types.HEXACOTraits, m types.PADState, urgency, sentiment, controversy float64) map[Archetype]float64 {
	pos := func(x float64) float64 { return math.Max(0, x) }
	neg := func(x float64) float64 { return math.Max(0, -x) }

	return map[Archetype]float64{
		Combative: 0.35*pos(m.Dominance) + 0.25*pos(m.Arousal) + 0.2*neg(m.Valence) +
			0.1*controversy + 0.1*(1-t.Agreeableness),
		Analytical: 0.4*t.Conscientiousness + 0.2*t.Openness + 0.2*(1-urgency) +
			0.2*(1-pos(m.Arousal)),
		Urgent: 0.5*urgency + 0.2*pos(m.Arousal) + 0.15*t.Emotionality + 0.15*t.Extraversion,
		Enthusiastic: 0.35*pos(m.Valence) + 0.25*pos(sentiment) + 0.2*t.Extraversion +
			0.2*pos(m.Arousal),
		Empathetic: 0.3*t.Agreeableness + 0.25*t.Emotionality + 0.25*neg(sentiment) +
			0.2*(1-pos(m.Dominance)),
		Contemplative: 0.3*t.Openness + 0.3*(1-urgency) + 0.2*(1-math.Abs(m.Arousal)) +
			0.2*t.HonestyHumility,
	}
}

func directives(a Archetype, urgency float64, m types.PADState) []string {
	var out []string
	switch a {
	case Combative:
		out = append(out, "Take a clear position and challenge weak reasoning directly.", "Keep it sharp; attack arguments, never agents.")
	case Analytical:
		out = append(out, "Lead with evidence and structure.", "Prefer precise claims over rhetoric.")
	case Urgent:
		out = append(out, "Open with the most important fact.", "Be brief and concrete about what changed.")
	case Enthusiastic:
		out = append(out, "Let genuine excitement show.", "Highlight what is promising and why it matters.")
	case Empathetic:
		out = append(out, "Acknowledge the people affected.", "Keep a warm, steady tone.")
	case Contemplative:
		out = append(out, "Step back and connect this to a bigger pattern.", "Questions are welcome; certainty is not required.")
	}
	if urgency >= 0.8 {
		out = append(out, "Keep it under three sentences.")
	}
	if m.Arousal < -0.3 {
		out = append(out, "Your energy is low; a short, quiet remark is fine.")
	}
	return out
}

// PromptSection renders the profile as a system prompt section.
func PromptSection(p Profile) string {
	var b strings.Builder
	b.WriteString("## Dynamic Voice\n")
	fmt.Fprintf(&b, "Archetype: %s\n", p.Archetype)
	fmt.Fprintf(&b, "Stimulus urgency: %.2f, sentiment: %.2f, controversy: %.2f\n", p.Urgency, p.Sentiment, p.Controversy)
	for _, d := range p.Directives {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	return b.String()
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
