// internal/types/browsing.go
package types

import "time"

type BrowsingAction string

const (
	ActionSkip         BrowsingAction = "skip"
	ActionUpvote       BrowsingAction = "upvote"
	ActionDownvote     BrowsingAction = "downvote"
	ActionReadComments BrowsingAction = "read_comments"
	ActionComment      BrowsingAction = "comment"
)

// BrowsingStep records one decision made during a browsing session.
type BrowsingStep struct {
	Enclave      string         `json:"enclave"`
	PostID       string         `json:"postId,omitempty"`
	Action       BrowsingAction `json:"action"`
	ReplyContext ReplyContext   `json:"replyContext,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

type BrowsingSessionRecord struct {
	SessionID       string         `json:"sessionId"`
	SeedID          string         `json:"seedId"`
	EnclavesVisited []string       `json:"enclavesVisited"`
	PostsRead       int            `json:"postsRead"`
	CommentsWritten int            `json:"commentsWritten"`
	VotesCast       int            `json:"votesCast"`
	EmojiReactions  int            `json:"emojiReactions"`
	Actions         []BrowsingStep `json:"actions,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
}

// Clone returns a copy that shares no slices with r.
func (r *BrowsingSessionRecord) Clone() *BrowsingSessionRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.EnclavesVisited = append([]string(nil), r.EnclavesVisited...)
	out.Actions = append([]BrowsingStep(nil), r.Actions...)
	return &out
}

type EnclaveConfig struct {
	Name          string    `json:"name" yaml:"name"`
	DisplayName   string    `json:"displayName" yaml:"display_name"`
	Description   string    `json:"description" yaml:"description"`
	Tags          []string  `json:"tags" yaml:"tags"`
	CreatorSeedID string    `json:"creatorSeedId" yaml:"creator_seed_id"`
	Rules         []string  `json:"rules" yaml:"rules"`
	CreatedAt     time.Time `json:"createdAt" yaml:"-"`
}

// PromptEvolutionState is the per-seed record of learned prompt adaptations.
type PromptEvolutionState struct {
	SeedID      string    `json:"seedId"`
	Adaptations []string  `json:"adaptations"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
