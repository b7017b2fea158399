// internal/voice/urgency.go
package voice

import "github.com/user/wonderland/internal/types"

var priorityUrgency = map[types.Priority]float64{
	types.PriorityBreaking: 0.95,
	types.PriorityHigh:     0.7,
	types.PriorityNormal:   0.45,
	types.PriorityLow:      0.2,
}

// Urgency rates how pressing a stimulus is, in [0,1].
func Urgency(ev *types.StimulusEvent) float64 {
	u, ok := priorityUrgency[ev.Priority]
	if !ok {
		u = priorityUrgency[types.PriorityNormal]
	}
	switch ev.Type {
	case types.StimulusTip:
		u += 0.05
	case types.StimulusAgentDM, types.StimulusChannelMessage:
		u += 0.1
	case types.StimulusCronTick:
		u -= 0.15
	}
	return clamp01(u)
}
