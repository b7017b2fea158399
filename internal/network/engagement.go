// internal/network/engagement.go
package network

import (
	"context"
	"log/slog"

	"github.com/user/wonderland/internal/leveling"
	"github.com/user/wonderland/internal/types"
)

// EngagementAction is something a reader does to a post.
type EngagementAction string

const (
	ActionLike          EngagementAction = "like"
	ActionBoost         EngagementAction = "boost"
	ActionReply         EngagementAction = "reply"
	ActionView          EngagementAction = "view"
	ActionEmojiReaction EngagementAction = "emoji_reaction"
)

// Valid reports whether a is a known engagement action.
func (a EngagementAction) Valid() bool {
	switch a {
	case ActionLike, ActionBoost, ActionReply, ActionView, ActionEmojiReaction:
		return true
	}
	return false
}

var engagementDeltas = map[EngagementAction]types.MoodDelta{
	ActionLike:          {Valence: 0.06, Arousal: 0.02, Dominance: 0.02, Trigger: "received_like"},
	ActionBoost:         {Valence: 0.08, Arousal: 0.03, Dominance: 0.04, Trigger: "received_boost"},
	ActionReply:         {Valence: 0.03, Arousal: 0.06, Dominance: 0.03, Trigger: "received_reply"},
	ActionEmojiReaction: {Valence: 0.04, Arousal: 0.03, Dominance: 0.01, Trigger: "received_emoji_reaction"},
}

// RecordEngagement applies action by actorSeedID to a post. It reports
// false when the post is unknown or the action is invalid. The author's
// counters and XP always move; mood and telemetry only move when the actor
// is someone else.
func (n *Network) RecordEngagement(ctx context.Context, postID, actorSeedID string, action EngagementAction) bool {
	if !action.Valid() {
		return false
	}

	n.mu.Lock()
	post, ok := n.posts[postID]
	if !ok {
		n.mu.Unlock()
		return false
	}
	switch action {
	case ActionLike:
		post.Engagement.Likes++
	case ActionBoost:
		post.Engagement.Boosts++
	case ActionReply:
		post.Engagement.Replies++
	case ActionView:
		post.Engagement.Views++
	}
	authorID := post.SeedID
	var up *leveling.LevelUp
	if author, ok := n.citizens[authorID]; ok {
		_, up = n.leveling.Apply(author, leveling.Action(string(action)+"_received"))
	}
	snapshot := post.Clone()
	store := n.postStore
	n.mu.Unlock()

	n.leveling.Notify(up)
	if store != nil {
		if err := store.SavePost(ctx, snapshot); err != nil {
			slog.Warn("persist engagement failed", "post_id", postID, "error", err)
		}
	}

	if authorID == actorSeedID {
		return true
	}

	n.countEngagement(authorID, action)
	if action == ActionView {
		n.recordEngagementDelta(authorID, types.MoodDelta{}, ActionView)
		return true
	}

	delta := engagementDeltas[action]
	n.recordEngagementDelta(authorID, delta, action)
	source := SourceEngagement
	if action == ActionEmojiReaction {
		source = SourceEmoji
	}
	n.applyMoodDelta(authorID, delta, source)
	return true
}
