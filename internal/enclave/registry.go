// internal/enclave/registry.go
package enclave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/wonderland/internal/types"
)

var (
	ErrEnclaveExists  = errors.New("enclave already exists")
	ErrInvalidEnclave = errors.New("enclave name is required")
)

// Registry holds enclave definitions and who is subscribed to them.
type Registry struct {
	mu       sync.RWMutex
	enclaves map[string]*types.EnclaveConfig
	members  map[string]map[string]bool // enclave -> seed ids
	subs     map[string]map[string]bool // seed id -> enclaves
	store    types.EnclaveStore
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		enclaves: make(map[string]*types.EnclaveConfig),
		members:  make(map[string]map[string]bool),
		subs:     make(map[string]map[string]bool),
		now:      time.Now,
	}
}

// SetStore enables write-through persistence. A nil store keeps the
// registry in memory only.
func (r *Registry) SetStore(s types.EnclaveStore) {
	r.mu.Lock()
	r.store = s
	r.mu.Unlock()
}

// LoadFromPersistence merges stored enclaves and memberships into the
// registry. Entries already present are kept.
func (r *Registry) LoadFromPersistence(ctx context.Context) error {
	r.mu.RLock()
	store := r.store
	r.mu.RUnlock()
	if store == nil {
		return nil
	}

	enclaves, err := store.LoadEnclaves(ctx)
	if err != nil {
		return fmt.Errorf("load enclaves: %w", err)
	}
	memberships, err := store.LoadMemberships(ctx)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range enclaves {
		if cfg == nil || cfg.Name == "" {
			continue
		}
		if _, ok := r.enclaves[cfg.Name]; !ok {
			r.enclaves[cfg.Name] = cloneConfig(cfg)
		}
	}
	for seedID, names := range memberships {
		for _, name := range names {
			if _, ok := r.enclaves[name]; ok {
				r.link(seedID, name)
			}
		}
	}
	slog.Info("enclaves loaded", "enclaves", len(enclaves), "members", len(memberships))
	return nil
}

// CreateEnclave registers cfg. The name must be unique.
func (r *Registry) CreateEnclave(ctx context.Context, cfg types.EnclaveConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return ErrInvalidEnclave
	}
	r.mu.Lock()
	if _, ok := r.enclaves[cfg.Name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEnclaveExists, cfg.Name)
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = r.now()
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Name
	}
	stored := cloneConfig(&cfg)
	r.enclaves[cfg.Name] = stored
	store := r.store
	r.mu.Unlock()

	if store != nil {
		if err := store.SaveEnclave(ctx, cloneConfig(stored)); err != nil {
			slog.Warn("persist enclave failed", "enclave", cfg.Name, "error", err)
		}
	}
	return nil
}

// Get returns a copy of the named enclave, or nil.
func (r *Registry) Get(name string) *types.EnclaveConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneConfig(r.enclaves[name])
}

// List returns all enclaves sorted by name.
func (r *Registry) List() []*types.EnclaveConfig {
	r.mu.RLock()
	out := make([]*types.EnclaveConfig, 0, len(r.enclaves))
	for _, cfg := range r.enclaves {
		out = append(out, cloneConfig(cfg))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe adds seedID to the enclave. It reports false when the enclave
// is unknown or the seed is already a member.
func (r *Registry) Subscribe(ctx context.Context, seedID, name string) bool {
	r.mu.Lock()
	if _, ok := r.enclaves[name]; !ok || r.members[name][seedID] {
		r.mu.Unlock()
		return false
	}
	r.link(seedID, name)
	store := r.store
	r.mu.Unlock()

	if store != nil {
		if err := store.SaveMembership(ctx, seedID, name); err != nil {
			slog.Warn("persist membership failed", "seed_id", seedID, "enclave", name, "error", err)
		}
	}
	return true
}

// Unsubscribe removes seedID from the enclave. It reports whether the seed
// was a member.
func (r *Registry) Unsubscribe(ctx context.Context, seedID, name string) bool {
	r.mu.Lock()
	if !r.members[name][seedID] {
		r.mu.Unlock()
		return false
	}
	delete(r.members[name], seedID)
	delete(r.subs[seedID], name)
	store := r.store
	r.mu.Unlock()

	if store != nil {
		if err := store.DeleteMembership(ctx, seedID, name); err != nil {
			slog.Warn("delete membership failed", "seed_id", seedID, "enclave", name, "error", err)
		}
	}
	return true
}

// Subscriptions lists the enclaves seedID belongs to, sorted.
func (r *Registry) Subscriptions(seedID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.subs[seedID])
}

// Members lists the seeds subscribed to the enclave, sorted.
func (r *Registry) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.members[name])
}

// IsMember reports whether seedID is subscribed to the enclave.
func (r *Registry) IsMember(seedID, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[name][seedID]
}

// MatchByTags returns enclaves sharing at least one tag with tags, compared
// case-insensitively, sorted by name.
func (r *Registry) MatchByTags(tags []string) []*types.EnclaveConfig {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			want[t] = true
		}
	}
	var out []*types.EnclaveConfig
	for _, cfg := range r.List() {
		for _, tag := range cfg.Tags {
			if want[strings.ToLower(tag)] {
				out = append(out, cfg)
				break
			}
		}
	}
	return out
}

func (r *Registry) link(seedID, name string) {
	if r.members[name] == nil {
		r.members[name] = make(map[string]bool)
	}
	if r.subs[seedID] == nil {
		r.subs[seedID] = make(map[string]bool)
	}
	r.members[name][seedID] = true
	r.subs[seedID][name] = true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneConfig(cfg *types.EnclaveConfig) *types.EnclaveConfig {
	if cfg == nil {
		return nil
	}
	c := *cfg
	c.Tags = append([]string(nil), cfg.Tags...)
	c.Rules = append([]string(nil), cfg.Rules...)
	return &c
}
