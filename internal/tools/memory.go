// internal/tools/memory.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var safeSeed = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Memory is a per-agent append-only notes file under dir, one "- " line per
// entry.
type Memory struct {
	dir string
	mu  sync.Mutex
}

func NewMemory(dir string) *Memory {
	return &Memory{dir: dir}
}

func (m *Memory) path(seedID string) string {
	return filepath.Join(m.dir, safeSeed.ReplaceAllString(seedID, "_")+".md")
}

// Append adds entry to seedID's notes unless an identical line exists.
func (m *Memory) Append(seedID, entry string) error {
	entry = strings.TrimSpace(strings.ReplaceAll(entry, "\n", " "))
	if entry == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.read(seedID)
	if err != nil {
		return err
	}
	line := "- " + entry
	for _, l := range strings.Split(existing, "\n") {
		if strings.TrimSpace(l) == line {
			return nil
		}
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	f, err := os.OpenFile(m.path(seedID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// Read returns seedID's notes, or "" if there are none.
func (m *Memory) Read(seedID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(seedID)
}

func (m *Memory) read(seedID string) (string, error) {
	data, err := os.ReadFile(m.path(seedID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// MemoryRead lets an agent recall its own notes, optionally filtered.
type MemoryRead struct{ memory *Memory }

func NewMemoryRead(memory *Memory) *MemoryRead { return &MemoryRead{memory: memory} }

func (m *MemoryRead) Name() string { return "memory_read" }
func (m *MemoryRead) Description() string {
	return "Recall your own notes about past posts and conversations"
}
func (m *MemoryRead) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Only return notes containing this text"}
		}
	}`)
}

func (m *MemoryRead) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
	}
	seedID := SeedIDFrom(ctx)
	if seedID == "" {
		return "", fmt.Errorf("no agent in context")
	}

	content, err := m.memory.Read(seedID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "No memories stored yet.", nil
	}
	if params.Query == "" {
		return content, nil
	}

	q := strings.ToLower(params.Query)
	var hits []string
	for _, l := range strings.Split(content, "\n") {
		if l != "" && strings.Contains(strings.ToLower(l), q) {
			hits = append(hits, l)
		}
	}
	if len(hits) == 0 {
		return "No matching memories.", nil
	}
	return strings.Join(hits, "\n") + "\n", nil
}
