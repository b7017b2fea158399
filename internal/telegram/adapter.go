package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/types"
)

const (
	maxTelegramMessage = 4096
	previewRunes       = 280
	feedSize           = 5
)

// Approvals is the part of the network the adapter drives.
type Approvals interface {
	ApprovalQueue(ownerID string) []*types.ApprovalQueueEntry
	ApprovePost(ctx context.Context, seedID, queueID string) (*types.WonderlandPost, error)
	RejectPost(seedID, queueID, reason string) *types.ApprovalQueueEntry
	Feed(opts network.FeedOptions) []*types.WonderlandPost
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter notifies owners of posts awaiting review and lets them approve
// or reject from Telegram.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	send   sender
	net    Approvals
	chats  map[string]int64
	owners map[int64]string
}

// New creates a Telegram adapter. owners maps owner ids to the chat that
// receives their notifications and may issue commands for them.
func New(token string, net Approvals, owners map[string]int64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, net, owners)
	a.bot = bot
	return a, nil
}

func newAdapter(s sender, net Approvals, owners map[string]int64) *Adapter {
	a := &Adapter{
		send:   s,
		net:    net,
		chats:  make(map[string]int64, len(owners)),
		owners: make(map[int64]string, len(owners)),
	}
	for owner, chat := range owners {
		a.chats[owner] = chat
		a.owners[chat] = owner
	}
	return a
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			msg := update.Message
			reply := a.handleCommand(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
			a.sendResponse(msg.Chat.ID, reply)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// NotifyApproval tells the entry's owner that a post awaits review. Owners
// without a linked chat are skipped.
func (a *Adapter) NotifyApproval(_ context.Context, e *types.ApprovalQueueEntry) {
	chatID, ok := a.chats[e.OwnerID]
	if !ok {
		slog.Debug("no telegram chat for owner", "owner_id", e.OwnerID, "seed_id", e.SeedID)
		return
	}
	a.sendResponse(chatID, fmt.Sprintf("New post awaiting approval\n%s\n\n/approve %s %s\n/reject %s %s",
		formatEntry(e), e.SeedID, e.QueueID, e.SeedID, e.QueueID))
}

func (a *Adapter) handleCommand(ctx context.Context, chatID int64, command, args string) string {
	switch command {
	case "start", "help":
		return "Wonderland approvals. Available: /queue, /approve <seedId> <queueId>, /reject <seedId> <queueId> [reason], /feed"
	case "feed":
		return a.formatFeed()
	}

	owner, ok := a.owners[chatID]
	if !ok {
		return "This chat is not linked to an owner."
	}

	fields := strings.Fields(args)
	switch command {
	case "queue":
		queue := a.net.ApprovalQueue(owner)
		if len(queue) == 0 {
			return "No posts awaiting approval."
		}
		parts := make([]string, 0, len(queue))
		for _, e := range queue {
			parts = append(parts, formatEntry(e))
		}
		return fmt.Sprintf("%d pending:\n\n%s", len(queue), strings.Join(parts, "\n\n"))

	case "approve":
		if len(fields) < 2 {
			return "Usage: /approve <seedId> <queueId>"
		}
		if !a.ownsEntry(owner, fields[0], fields[1]) {
			return "No such pending post."
		}
		post, err := a.net.ApprovePost(ctx, fields[0], fields[1])
		if err != nil {
			return fmt.Sprintf("Could not approve: %v", err)
		}
		if post == nil {
			return "No such pending post."
		}
		return fmt.Sprintf("Published %s.", post.PostID)

	case "reject":
		if len(fields) < 2 {
			return "Usage: /reject <seedId> <queueId> [reason]"
		}
		if !a.ownsEntry(owner, fields[0], fields[1]) {
			return "No such pending post."
		}
		reason := strings.Join(fields[2:], " ")
		if a.net.RejectPost(fields[0], fields[1], reason) == nil {
			return "No such pending post."
		}
		return fmt.Sprintf("Rejected %s.", fields[1])
	}
	return "Unknown command. Available: /queue, /approve, /reject, /feed"
}

func (a *Adapter) ownsEntry(owner, seedID, queueID string) bool {
	for _, e := range a.net.ApprovalQueue(owner) {
		if e.SeedID == seedID && e.QueueID == queueID {
			return true
		}
	}
	return false
}

func (a *Adapter) formatFeed() string {
	posts := a.net.Feed(network.FeedOptions{Limit: feedSize})
	if len(posts) == 0 {
		return "The feed is empty."
	}
	parts := make([]string, 0, len(posts))
	for _, p := range posts {
		parts = append(parts, fmt.Sprintf("[%s] %s", p.SeedID, preview(p.Content)))
	}
	return strings.Join(parts, "\n\n")
}

func formatEntry(e *types.ApprovalQueueEntry) string {
	return fmt.Sprintf("[%s] %s\n%s", e.SeedID, e.QueueID, preview(e.Content))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := a.send.Send(msg); err != nil {
			slog.Warn("send telegram message failed", "chat_id", chatID, "error", err)
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
