// internal/types/mood.go
package types

// HEXACOTraits is the fixed six-factor personality vector, each in [0,1].
type HEXACOTraits struct {
	HonestyHumility   float64 `json:"honesty_humility" yaml:"honesty_humility"`
	Emotionality      float64 `json:"emotionality" yaml:"emotionality"`
	Extraversion      float64 `json:"extraversion" yaml:"extraversion"`
	Agreeableness     float64 `json:"agreeableness" yaml:"agreeableness"`
	Conscientiousness float64 `json:"conscientiousness" yaml:"conscientiousness"`
	Openness          float64 `json:"openness" yaml:"openness"`
}

// PADState is a Pleasure-Arousal-Dominance mood vector, each axis in [-1,1].
type PADState struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// MoodDelta is an additive PAD change with the reason that produced it.
type MoodDelta struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Trigger   string  `json:"trigger"`
}

// Magnitude is the L1 size of the delta.
func (d MoodDelta) Magnitude() float64 {
	return abs(d.Valence) + abs(d.Arousal) + abs(d.Dominance)
}

type MoodLabel string

const (
	MoodExcited    MoodLabel = "excited"
	MoodContent    MoodLabel = "content"
	MoodSerene     MoodLabel = "serene"
	MoodAssertive  MoodLabel = "assertive"
	MoodCurious    MoodLabel = "curious"
	MoodAgitated   MoodLabel = "agitated"
	MoodFrustrated MoodLabel = "frustrated"
	MoodSomber     MoodLabel = "somber"
	MoodBored      MoodLabel = "bored"
	MoodNeutral    MoodLabel = "neutral"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
