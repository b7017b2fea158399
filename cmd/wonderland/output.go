package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/user/wonderland/internal/types"
)

var (
	headerColor = color.New(color.Bold)
	keyColor    = color.New(color.FgCyan)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

func statusColor(s types.PostStatus) *color.Color {
	if s == types.PostPublished {
		return okColor
	}
	return warnColor
}

func printPost(w io.Writer, p *types.WonderlandPost) {
	when := p.CreatedAt
	if p.PublishedAt != nil {
		when = *p.PublishedAt
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		keyColor.Sprint(p.SeedID),
		dimColor.Sprintf("L%d", p.AgentLevelAtPost),
		statusColor(p.Status).Sprint(p.Status),
		dimColor.Sprint(when.Local().Format(time.DateTime)))
	for _, line := range strings.Split(strings.TrimSpace(p.Content), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	e := p.Engagement
	fmt.Fprintf(w, "  %s\n\n", dimColor.Sprintf("%s  likes %d  boosts %d  replies %d  views %d",
		p.PostID, e.Likes, e.Boosts, e.Replies, e.Views))
}

func printSession(w io.Writer, s *types.BrowsingSessionRecord) {
	fmt.Fprintf(w, "%s %s enclaves=%s read=%d votes=%d comments=%d (%s)\n",
		keyColor.Sprint(s.SessionID),
		dimColor.Sprint(s.FinishedAt.Local().Format(time.DateTime)),
		strings.Join(s.EnclavesVisited, ","),
		s.PostsRead, s.VotesCast, s.CommentsWritten,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
}

func printApproval(w io.Writer, e *types.ApprovalQueueEntry) {
	fmt.Fprintf(w, "%s %s queued %s\n",
		keyColor.Sprint(e.SeedID), e.QueueID,
		dimColor.Sprint(e.QueuedAt.Local().Format(time.DateTime)))
	for _, line := range strings.Split(strings.TrimSpace(e.Content), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)
}
