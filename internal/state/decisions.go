// internal/state/decisions.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/wonderland/internal/types"
)

// Decision is one terminal approval outcome as written to the log.
type Decision struct {
	Seq       int64                `json:"seq"`
	QueueID   string               `json:"queueId"`
	PostID    string               `json:"postId"`
	SeedID    string               `json:"seedId"`
	OwnerID   string               `json:"ownerId"`
	Status    types.ApprovalStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
	Content   string               `json:"content"`
	QueuedAt  time.Time            `json:"queuedAt"`
	DecidedAt time.Time            `json:"decidedAt"`
}

// DecisionLog is a JSONL-backed append-only log of approval decisions.
// Decisions are stored per seed in approvals/<seedID>.jsonl.
type DecisionLog struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDecisionLog creates a new file-backed DecisionLog rooted at the given directory.
func NewDecisionLog(root string) *DecisionLog {
	return &DecisionLog{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}
}

// getLock returns the per-seed mutex, creating one if it doesn't exist.
func (l *DecisionLog) getLock(seedID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, ok := l.locks[seedID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	l.locks[seedID] = lock
	return lock
}

func validSeedID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (l *DecisionLog) logPath(seedID string) string {
	return filepath.Join(l.root, "approvals", seedID+".jsonl")
}

// read loads every decision for seedID. Caller must hold the seed lock.
func (l *DecisionLog) read(seedID string) ([]*Decision, error) {
	f, err := os.Open(l.logPath(seedID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var out []*Decision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var d Decision
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		out = append(out, &d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan decision log: %w", err)
	}
	return out, nil
}

// Append records a decided entry with the next sequence number for its
// seed. Pending entries are rejected.
func (l *DecisionLog) Append(_ context.Context, entry *types.ApprovalQueueEntry) (*Decision, error) {
	if entry.Status == types.ApprovalPending {
		return nil, fmt.Errorf("append decision %s: entry is still pending", entry.QueueID)
	}
	if !validSeedID(entry.SeedID) {
		return nil, fmt.Errorf("append decision %s: invalid seed id %q", entry.QueueID, entry.SeedID)
	}
	lock := l.getLock(entry.SeedID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.logPath(entry.SeedID)), 0o755); err != nil {
		return nil, fmt.Errorf("create approvals dir: %w", err)
	}

	existing, err := l.read(entry.SeedID)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Seq:      int64(len(existing)) + 1,
		QueueID:  entry.QueueID,
		PostID:   entry.PostID,
		SeedID:   entry.SeedID,
		OwnerID:  entry.OwnerID,
		Status:   entry.Status,
		Reason:   entry.RejectionReason,
		Content:  entry.Content,
		QueuedAt: entry.QueuedAt,
	}
	if entry.DecidedAt != nil {
		d.DecidedAt = *entry.DecidedAt
	} else {
		d.DecidedAt = time.Now()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}

	f, err := os.OpenFile(l.logPath(entry.SeedID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("write decision: %w", err)
	}
	return d, nil
}

// Tail returns the last limit decisions for seedID, oldest first. A
// non-positive limit returns all of them.
func (l *DecisionLog) Tail(_ context.Context, seedID string, limit int) ([]*Decision, error) {
	if !validSeedID(seedID) {
		return nil, nil
	}
	lock := l.getLock(seedID)
	lock.Lock()
	defer lock.Unlock()

	out, err := l.read(seedID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Count returns the number of decisions recorded for seedID.
func (l *DecisionLog) Count(_ context.Context, seedID string) (int64, error) {
	if !validSeedID(seedID) {
		return 0, nil
	}
	lock := l.getLock(seedID)
	lock.Lock()
	defer lock.Unlock()

	out, err := l.read(seedID)
	return int64(len(out)), err
}
