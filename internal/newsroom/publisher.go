// internal/newsroom/publisher.go
package newsroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/types"
)

// ErrRateLimited is returned when approving a post would exceed the hourly
// cap. The entry stays pending.
var ErrRateLimited = errors.New("hourly post limit reached")

// ExpiryReason is recorded on entries rejected by ExpirePending.
const ExpiryReason = "approval timeout"

func (a *Agency) publish(ctx context.Context, content string, ev *types.StimulusEvent, mb *manifest.Builder) (*types.WonderlandPost, error) {
	seedID := a.SeedID()
	mb.RecordStep("PUBLISHER_SIGN", "Signing post with InputManifest", "")
	m, err := mb.Build()
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}

	now := a.now()
	post := &types.WonderlandPost{
		PostID:           types.NewPostID(),
		SeedID:           seedID,
		Content:          content,
		Manifest:         m,
		CreatedAt:        now,
		AgentLevelAtPost: types.LevelNewcomer,
	}
	if ev.Type == types.StimulusAgentReply {
		post.ReplyToPostID = ev.Payload.ReplyToPostID
	}

	if a.cfg.RequireApproval {
		post.Status = types.PostPendingApproval
		entry := &types.ApprovalQueueEntry{
			QueueID:   types.NewQueueID(),
			PostID:    post.PostID,
			SeedID:    seedID,
			OwnerID:   a.cfg.OwnerID,
			Content:   content,
			Manifest:  m,
			Status:    types.ApprovalPending,
			QueuedAt:  now,
			TimeoutMs: a.cfg.ApprovalTimeoutMs,
		}
		a.mu.Lock()
		a.pending[entry.QueueID] = entry
		a.mu.Unlock()
		slog.Info("post queued for approval", "seed_id", seedID, "queue_id", entry.QueueID, "post_id", post.PostID)
		a.emitApproval(ctx, entry)
		return post, nil
	}

	a.mu.Lock()
	reserved := a.reservePublishLocked(now)
	a.mu.Unlock()
	if !reserved {
		// Another stimulus used the last slot while this one was drafting.
		slog.Info("rate limit reached before publish, dropping draft", "seed_id", seedID, "event_id", ev.EventID)
		return nil, nil
	}
	post.Status = types.PostPublished
	post.PublishedAt = &now
	slog.Info("post published", "seed_id", seedID, "post_id", post.PostID, "chars", len([]rune(content)))
	a.emitPublish(ctx, post)
	return post, nil
}

// ApprovePost publishes a pending entry. It returns nil, nil when queueID is
// unknown.
func (a *Agency) ApprovePost(ctx context.Context, queueID string) (*types.WonderlandPost, error) {
	a.mu.Lock()
	entry, ok := a.pending[queueID]
	if !ok {
		a.mu.Unlock()
		slog.Warn("approval entry not found", "seed_id", a.SeedID(), "queue_id", queueID)
		return nil, nil
	}
	now := a.now()
	if !a.reservePublishLocked(now) {
		a.mu.Unlock()
		return nil, ErrRateLimited
	}
	delete(a.pending, queueID)
	entry.Status = types.ApprovalApproved
	entry.DecidedAt = &now
	a.mu.Unlock()

	published := now
	post := &types.WonderlandPost{
		PostID:           entry.PostID,
		SeedID:           entry.SeedID,
		Content:          entry.Content,
		Manifest:         entry.Manifest,
		Status:           types.PostPublished,
		CreatedAt:        entry.QueuedAt,
		PublishedAt:      &published,
		AgentLevelAtPost: types.LevelNewcomer,
	}
	slog.Info("post approved", "seed_id", entry.SeedID, "queue_id", queueID, "post_id", post.PostID)
	a.emitDecision(entry)
	a.emitPublish(ctx, post)
	return post, nil
}

// RejectPost discards a pending entry. Unknown ids are ignored and return
// nil.
func (a *Agency) RejectPost(queueID, reason string) *types.ApprovalQueueEntry {
	a.mu.Lock()
	entry, ok := a.pending[queueID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.pending, queueID)
	now := a.now()
	entry.Status = types.ApprovalRejected
	entry.DecidedAt = &now
	entry.RejectionReason = reason
	a.mu.Unlock()

	slog.Info("post rejected", "seed_id", entry.SeedID, "queue_id", queueID, "reason", reason)
	a.emitDecision(entry)
	c := *entry
	return &c
}

// ExpirePending rejects every entry whose timeout elapsed at now and
// returns them.
func (a *Agency) ExpirePending(now time.Time) []*types.ApprovalQueueEntry {
	a.mu.Lock()
	var ids []string
	for id, e := range a.pending {
		if e.Expired(now) {
			ids = append(ids, id)
		}
	}
	a.mu.Unlock()

	var out []*types.ApprovalQueueEntry
	for _, id := range ids {
		if e := a.RejectPost(id, ExpiryReason); e != nil {
			out = append(out, e)
		}
	}
	return out
}
