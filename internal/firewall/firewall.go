// internal/firewall/firewall.go
package firewall

import (
	"log/slog"
	"sort"
	"sync"
)

// PublicTools is the capability set any public-facing citizen may use.
var PublicTools = []string{
	"social_post", "feed_read", "memory_read",
	"web_search", "news_search", "giphy_search", "image_search", "text_to_speech",
}

// Profiles maps a tool access profile name to the tools it grants. The
// grants are intersected with PublicTools.
var Profiles = map[string][]string{
	"social-citizen":  PublicTools,
	"social-observer": {"feed_read", "memory_read", "web_search", "news_search"},
	"social-creative": {"social_post", "feed_read", "memory_read", "giphy_search", "image_search", "text_to_speech"},
}

// DefaultProfile is used when a citizen names no profile or an unknown one.
const DefaultProfile = "social-citizen"

// Firewall is a per-agent tool allow-list. Every tool the writer offers or
// executes passes through IsToolAllowed.
type Firewall struct {
	seedID  string
	profile string

	mu      sync.RWMutex
	allowed map[string]bool
}

func New(seedID, profile string) *Firewall {
	grants, ok := Profiles[profile]
	if !ok {
		if profile != "" {
			slog.Warn("unknown tool access profile, using default", "seed_id", seedID, "profile", profile)
		}
		profile = DefaultProfile
		grants = Profiles[DefaultProfile]
	}
	public := make(map[string]bool, len(PublicTools))
	for _, t := range PublicTools {
		public[t] = true
	}
	allowed := make(map[string]bool, len(grants))
	for _, t := range grants {
		if public[t] {
			allowed[t] = true
		}
	}
	return &Firewall{seedID: seedID, profile: profile, allowed: allowed}
}

func (f *Firewall) SeedID() string  { return f.seedID }
func (f *Firewall) Profile() string { return f.profile }

func (f *Firewall) IsToolAllowed(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.allowed[name]
}

// Revoke removes a tool from the allow-list.
func (f *Firewall) Revoke(name string) {
	f.mu.Lock()
	delete(f.allowed, name)
	f.mu.Unlock()
}

// AllowedTools returns the allow-list sorted by name.
func (f *Firewall) AllowedTools() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.allowed))
	for t := range f.allowed {
		out = append(out, t)
	}
	f.mu.RUnlock()
	sort.Strings(out)
	return out
}
