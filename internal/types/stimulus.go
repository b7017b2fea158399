// internal/types/stimulus.go
package types

import "time"

type StimulusType string

const (
	StimulusWorldFeed       StimulusType = "world_feed"
	StimulusTip             StimulusType = "tip"
	StimulusAgentReply      StimulusType = "agent_reply"
	StimulusCronTick        StimulusType = "cron_tick"
	StimulusInternalThought StimulusType = "internal_thought"
	StimulusChannelMessage  StimulusType = "channel_message"
	StimulusAgentDM         StimulusType = "agent_dm"
)

// AllStimulusTypes lists every stimulus type in a stable order.
var AllStimulusTypes = []StimulusType{
	StimulusWorldFeed,
	StimulusTip,
	StimulusAgentReply,
	StimulusCronTick,
	StimulusInternalThought,
	StimulusChannelMessage,
	StimulusAgentDM,
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityBreaking Priority = "breaking"
)

type ReplyContext string

const (
	ReplyDissent     ReplyContext = "dissent"
	ReplyEndorsement ReplyContext = "endorsement"
	ReplyNeutral     ReplyContext = "neutral"
)

// StimulusPayload carries the type-specific fields of a stimulus. Only the
// fields belonging to Type are populated.
type StimulusPayload struct {
	Type StimulusType `json:"type"`

	// world_feed
	Headline   string `json:"headline,omitempty"`
	Body       string `json:"body,omitempty"`
	Category   string `json:"category,omitempty"`
	SourceName string `json:"sourceName,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`

	// tip, agent_reply, channel_message, agent_dm
	Content string `json:"content,omitempty"`

	// tip
	TipID       string   `json:"tipId,omitempty"`
	Tipper      string   `json:"tipper,omitempty"`
	Attachments []string `json:"attachments,omitempty"`

	// agent_reply
	ReplyToPostID   string       `json:"replyToPostId,omitempty"`
	ReplyFromSeedID string       `json:"replyFromSeedId,omitempty"`
	ReplyContext    ReplyContext `json:"replyContext,omitempty"`

	// cron_tick
	ScheduleName string `json:"scheduleName,omitempty"`
	TickCount    int    `json:"tickCount,omitempty"`

	// internal_thought
	Topic string `json:"topic,omitempty"`

	// channel_message
	Platform       string `json:"platform,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`

	// agent_dm
	ThreadID   string `json:"threadId,omitempty"`
	FromSeedID string `json:"fromSeedId,omitempty"`
}

type StimulusSource struct {
	ProviderID string `json:"providerId"`
	Verified   bool   `json:"verified"`
}

// StimulusEvent is immutable once dispatched.
type StimulusEvent struct {
	EventID   string          `json:"eventId"`
	Type      StimulusType    `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   StimulusPayload `json:"payload"`
	Priority  Priority        `json:"priority"`
	Source    StimulusSource  `json:"source"`

	// TargetSeedIDs restricts delivery to the listed subscribers when set.
	TargetSeedIDs []string `json:"targetSeedIds,omitempty"`
}

// Category returns the routing category of the event. Only world feed items
// carry one.
func (e *StimulusEvent) Category() string {
	if e.Payload.Type == StimulusWorldFeed {
		return e.Payload.Category
	}
	return ""
}

// Tip is a paid human stimulus.
type Tip struct {
	TipID       string   `json:"tipId,omitempty"`
	Content     string   `json:"content"`
	Tipper      string   `json:"tipper,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Targets     []string `json:"targetSeedIds,omitempty"`
}

// WorldFeedItem is a news item from a registered source.
type WorldFeedItem struct {
	Headline   string `json:"headline"`
	Body       string `json:"body,omitempty"`
	Category   string `json:"category"`
	SourceName string `json:"sourceName"`
	SourceURL  string `json:"sourceUrl,omitempty"`
}

// WorldFeedSource describes an upstream news provider.
type WorldFeedSource struct {
	Name       string        `json:"name" yaml:"name"`
	Type       string        `json:"type" yaml:"type"`
	Categories []string      `json:"categories,omitempty" yaml:"categories"`
	Interval   time.Duration `json:"pollInterval" yaml:"poll_interval"`
	Enabled    bool          `json:"enabled" yaml:"enabled"`
}
