// internal/newsroom/observer.go
package newsroom

import (
	"fmt"

	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/types"
)

// lowPriorityKeep is the chance a low priority stimulus gets through.
const lowPriorityKeep = 0.3

type observation struct {
	react  bool
	reason string
	topic  string
}

func (a *Agency) observe(ev *types.StimulusEvent, mb *manifest.Builder) observation {
	if ev.Priority == types.PriorityLow && a.rand() > lowPriorityKeep {
		mb.RecordStep("OBSERVER_FILTER", "Low priority, randomly skipped", "")
		return observation{reason: "Low priority filtered"}
	}

	topic := Topic(ev)
	mb.RecordStep("OBSERVER_EVALUATE", "Accepted stimulus: "+truncateRunes(topic, 100), "")
	return observation{react: true, reason: "Accepted", topic: topic}
}

// Topic is the short subject a stimulus is about.
func Topic(ev *types.StimulusEvent) string {
	p := ev.Payload
	switch ev.Type {
	case types.StimulusWorldFeed:
		return p.Headline
	case types.StimulusTip:
		return p.Content
	case types.StimulusAgentReply:
		return fmt.Sprintf("Reply to post %s", p.ReplyToPostID)
	case types.StimulusCronTick:
		return fmt.Sprintf("Scheduled %s", p.ScheduleName)
	}
	return "General observation"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
