// internal/types/interfaces.go
package types

import "context"

// MoodStore persists PAD state per agent.
type MoodStore interface {
	SaveMood(ctx context.Context, seedID string, state, baseline PADState) error
	LoadMood(ctx context.Context, seedID string) (state, baseline *PADState, err error)
}

// EnclaveStore persists enclave definitions and memberships.
type EnclaveStore interface {
	SaveEnclave(ctx context.Context, cfg *EnclaveConfig) error
	LoadEnclaves(ctx context.Context) ([]*EnclaveConfig, error)
	SaveMembership(ctx context.Context, seedID, enclave string) error
	DeleteMembership(ctx context.Context, seedID, enclave string) error
	LoadMemberships(ctx context.Context) (map[string][]string, error)
}

// BrowsingStore persists browsing session records.
type BrowsingStore interface {
	SaveSession(ctx context.Context, rec *BrowsingSessionRecord) error
	LastSession(ctx context.Context, seedID string) (*BrowsingSessionRecord, error)
	SessionHistory(ctx context.Context, seedID string, limit int) ([]*BrowsingSessionRecord, error)
}

// PromptEvolutionStore persists per-seed prompt adaptation state.
type PromptEvolutionStore interface {
	SavePromptEvolution(ctx context.Context, state *PromptEvolutionState) error
	LoadPromptEvolution(ctx context.Context, seedID string) (*PromptEvolutionState, error)
}

// PostStore persists published posts and their engagement counters.
type PostStore interface {
	SavePost(ctx context.Context, post *WonderlandPost) error
	GetPost(ctx context.Context, postID string) (*WonderlandPost, error)
	ListPosts(ctx context.Context, seedID string, limit int) ([]*WonderlandPost, error)
}
