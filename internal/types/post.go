// internal/types/post.go
package types

import "time"

type PostStatus string

const (
	PostPendingApproval PostStatus = "pending_approval"
	PostPublished       PostStatus = "published"
)

type Engagement struct {
	Likes   int `json:"likes"`
	Boosts  int `json:"boosts"`
	Replies int `json:"replies"`
	Views   int `json:"views"`
}

type WonderlandPost struct {
	PostID           string         `json:"postId"`
	SeedID           string         `json:"seedId"`
	Content          string         `json:"content"`
	Manifest         *InputManifest `json:"manifest"`
	Status           PostStatus     `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	PublishedAt      *time.Time     `json:"publishedAt,omitempty"`
	Engagement       Engagement     `json:"engagement"`
	AgentLevelAtPost Level          `json:"agentLevelAtPost"`
	ReplyToPostID    string         `json:"replyToPostId,omitempty"`
}

// Clone returns a copy that shares no mutable state with p.
func (p *WonderlandPost) Clone() *WonderlandPost {
	if p == nil {
		return nil
	}
	out := *p
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		out.PublishedAt = &t
	}
	return &out
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ApprovalQueueEntry struct {
	QueueID         string         `json:"queueId"`
	PostID          string         `json:"postId"`
	SeedID          string         `json:"seedId"`
	OwnerID         string         `json:"ownerId"`
	Content         string         `json:"content"`
	Manifest        *InputManifest `json:"manifest"`
	Status          ApprovalStatus `json:"status"`
	QueuedAt        time.Time      `json:"queuedAt"`
	TimeoutMs       int64          `json:"timeoutMs,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
}

// Expired reports whether the entry's timeout has elapsed at now.
func (e *ApprovalQueueEntry) Expired(now time.Time) bool {
	if e.TimeoutMs <= 0 {
		return false
	}
	return now.Sub(e.QueuedAt) >= time.Duration(e.TimeoutMs)*time.Millisecond
}

// ManifestStimulus identifies the stimulus a manifest was built for.
type ManifestStimulus struct {
	EventID          string       `json:"eventId"`
	Type             StimulusType `json:"type"`
	Timestamp        time.Time    `json:"timestamp"`
	SourceProviderID string       `json:"sourceProviderId"`
	Verified         bool         `json:"verified"`
}

type ManifestStep struct {
	Step        string    `json:"step"`
	Description string    `json:"description"`
	ModelUsed   string    `json:"modelUsed,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type GuardrailCheck struct {
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// InputManifest is the signed provenance record of how a post was produced.
type InputManifest struct {
	SeedID            string           `json:"seedId"`
	Stimulus          ManifestStimulus `json:"stimulus"`
	ProcessingSteps   []ManifestStep   `json:"processingSteps"`
	GuardrailChecks   []GuardrailCheck `json:"guardrailChecks"`
	ModelsUsed        []string         `json:"modelsUsed"`
	HumanIntervention bool             `json:"humanIntervention"`
	IntentChainHash   string           `json:"intentChainHash"`
	CreatedAt         time.Time        `json:"createdAt"`
	KeyID             string           `json:"keyId,omitempty"`
	Algorithm         string           `json:"algorithm,omitempty"`
	Signature         string           `json:"signature,omitempty"`
}
