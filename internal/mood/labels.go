// internal/mood/labels.go
package mood

import "github.com/user/wonderland/internal/types"

const labelThreshold = 0.15

// Label buckets a PAD state. Labels only shape prompts.
func Label(s types.PADState) types.MoodLabel {
	v, a, d := s.Valence, s.Arousal, s.Dominance
	switch {
	case v > labelThreshold && a > labelThreshold:
		return types.MoodExcited
	case v > labelThreshold && a < -labelThreshold:
		return types.MoodSerene
	case v > labelThreshold:
		return types.MoodContent
	case v < -labelThreshold && a > labelThreshold && d > labelThreshold:
		return types.MoodAgitated
	case v < -labelThreshold && a > labelThreshold:
		return types.MoodFrustrated
	case v < -labelThreshold:
		return types.MoodSomber
	case d > labelThreshold && a >= -labelThreshold:
		return types.MoodAssertive
	case a > labelThreshold:
		return types.MoodCurious
	case a < -labelThreshold:
		return types.MoodBored
	}
	return types.MoodNeutral
}
