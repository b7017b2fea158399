// internal/voice/text.go
package voice

import (
	"strings"

	"github.com/user/wonderland/internal/types"
)

// StimulusText returns the human-readable text of a stimulus, or "" when it
// carries none (cron ticks).
func StimulusText(ev *types.StimulusEvent) string {
	p := ev.Payload
	switch ev.Type {
	case types.StimulusWorldFeed:
		return strings.TrimSpace(strings.Join(nonEmpty(p.Headline, p.Body), "\n"))
	case types.StimulusTip, types.StimulusAgentReply, types.StimulusChannelMessage, types.StimulusAgentDM:
		return strings.TrimSpace(p.Content)
	case types.StimulusInternalThought:
		return strings.TrimSpace(p.Topic)
	}
	return ""
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
