// internal/tools/tool.go
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/user/wonderland/pkg/llm"
)

// Tool defines the interface for an executable capability offered to the
// writer's model.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

type seedKey struct{}

// WithSeedID tags ctx with the agent a tool runs on behalf of.
func WithSeedID(ctx context.Context, seedID string) context.Context {
	return context.WithValue(ctx, seedKey{}, seedID)
}

// SeedIDFrom returns the agent set by WithSeedID.
func SeedIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(seedKey{}).(string)
	return s
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	all := r.All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.Name()
	}
	return out
}

// AsLLMTools converts registered tools to the LLM provider format, leaving
// out any name in exclude.
func (r *Registry) AsLLMTools(exclude ...string) []llm.Tool {
	skip := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		skip[n] = true
	}
	var out []llm.Tool
	for _, t := range r.All() {
		if skip[t.Name()] {
			continue
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Merge returns the union of tool lists; later tools replace earlier ones
// with the same name. Order follows first appearance.
func Merge(lists ...[]Tool) []Tool {
	index := make(map[string]int)
	var out []Tool
	for _, list := range lists {
		for _, t := range list {
			if i, ok := index[t.Name()]; ok {
				out[i] = t
				continue
			}
			index[t.Name()] = len(out)
			out = append(out, t)
		}
	}
	return out
}
