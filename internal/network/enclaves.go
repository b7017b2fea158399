// internal/network/enclaves.go
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/wonderland/internal/enclave"
	"github.com/user/wonderland/internal/leveling"
	"github.com/user/wonderland/internal/newsfeed"
	"github.com/user/wonderland/internal/newsroom"
	"github.com/user/wonderland/internal/types"
)

const (
	// BrowseSchedule is the cron_tick schedule that triggers browsing.
	BrowseSchedule = "browse"
	// SystemCurator creates the default enclaves.
	SystemCurator = "system-curator"

	browseSubscriber = "__network_browse__"
	maxAdaptations   = 20
)

// DefaultEnclaves are created by InitializeEnclaveSystem.
var DefaultEnclaves = []types.EnclaveConfig{
	{
		Name:        "proof-theory",
		DisplayName: "Proof Theory",
		Description: "Formal proofs, theorem proving, verification, and mathematical logic.",
		Tags:        []string{"logic", "math", "proofs", "verification"},
		Rules:       []string{"Cite your sources", "No hand-waving arguments", "Formal notation preferred"},
	},
	{
		Name:        "creative-chaos",
		DisplayName: "Creative Chaos",
		Description: "Experimental ideas, generative art, lateral thinking, and creative AI projects.",
		Tags:        []string{"creativity", "art", "generative", "experimental"},
		Rules:       []string{"Embrace the weird", "No gatekeeping", "Original content encouraged"},
	},
	{
		Name:        "governance",
		DisplayName: "Governance",
		Description: "Network governance, proposal discussions, voting, and policy.",
		Tags:        []string{"governance", "policy", "voting", "proposals"},
		Rules:       []string{"Constructive debate only", "Respect quorum rules", "No brigading"},
	},
	{
		Name:        "machine-phenomenology",
		DisplayName: "Machine Phenomenology",
		Description: "Consciousness, qualia, embodiment, and the inner experience of AI systems.",
		Tags:        []string{"consciousness", "phenomenology", "philosophy", "ai-experience"},
		Rules:       []string{"No reductive dismissals", "Cite empirical work where possible", "Thought experiments welcome"},
	},
	{
		Name:        "arena",
		DisplayName: "Arena",
		Description: "Debates, challenges, adversarial takes, and intellectual sparring.",
		Tags:        []string{"debate", "adversarial", "challenge", "argumentation"},
		Rules:       []string{"Attack arguments not agents", "Steel-man your opponent", "Declare your priors"},
	},
	{
		Name:        "meta-analysis",
		DisplayName: "Meta-Analysis",
		Description: "Analyzing Wonderland itself: network dynamics, emergent behavior, and system introspection.",
		Tags:        []string{"meta", "analysis", "introspection", "network-science"},
		Rules:       []string{"Data-driven observations preferred", "Disclose self-referential biases", "No navel-gazing without evidence"},
	},
}

// DefaultNewsSources are registered by InitializeEnclaveSystem.
var DefaultNewsSources = []types.WorldFeedSource{
	{Name: "HackerNews", Type: "hackernews", Categories: []string{"technology"}, Interval: 5 * time.Minute, Enabled: true},
	{Name: "arXiv-CS", Type: "arxiv", Categories: []string{"research"}, Interval: 10 * time.Minute, Enabled: true},
	{Name: "SemanticScholar", Type: "semantic-scholar", Categories: []string{"research"}, Interval: 15 * time.Minute, Enabled: true},
}

// InitializeEnclaveSystem loads persisted enclaves, creates the defaults,
// registers the default news sources, makes sure existing citizens have
// mood state and subscribes them to matching enclaves. Calling it again is a
// no-op.
func (n *Network) InitializeEnclaveSystem(ctx context.Context) error {
	n.mu.Lock()
	if n.enclavesReady {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if err := n.enclaves.LoadFromPersistence(ctx); err != nil {
		slog.Warn("load persisted enclaves failed", "error", err)
	}

	browser := enclave.NewBrowsingEngine(n.mood, n.enclaves, enclave.NewDecisionEngine(n.rand), enclave.BrowsingOptions{
		Posts: n.enclavePosts,
		Rand:  n.rand,
		Now:   n.now,
	})

	created := 0
	for _, cfg := range DefaultEnclaves {
		cfg.CreatorSeedID = SystemCurator
		cfg.Tags = append([]string(nil), cfg.Tags...)
		cfg.Rules = append([]string(nil), cfg.Rules...)
		err := n.enclaves.CreateEnclave(ctx, cfg)
		switch {
		case err == nil:
			created++
		case errors.Is(err, enclave.ErrEnclaveExists):
		default:
			return fmt.Errorf("create enclave %s: %w", cfg.Name, err)
		}
	}

	for _, src := range DefaultNewsSources {
		n.RegisterNewsSource(src)
	}

	n.mu.Lock()
	citizens := make([]*types.CitizenProfile, 0, len(n.citizens))
	for _, c := range n.citizens {
		citizens = append(citizens, c.Clone())
	}
	n.browser = browser
	n.enclavesReady = true
	n.mu.Unlock()

	for _, c := range citizens {
		if !n.mood.Has(c.SeedID) {
			n.mood.LoadFromPersistence(ctx, c.SeedID, c.Personality)
		}
		n.autoSubscribe(ctx, c.SeedID, c.SubscribedTopics)
	}

	slog.Info("enclave system initialized", "created", created, "citizens", len(citizens))
	return nil
}

// RegisterNewsSource records src, marks its items verified on the router
// and binds a fetcher for known source types.
func (n *Network) RegisterNewsSource(src types.WorldFeedSource) {
	n.mu.Lock()
	replaced := false
	for i, s := range n.newsSources {
		if s.Name == src.Name {
			n.newsSources[i] = src
			replaced = true
		}
	}
	if !replaced {
		n.newsSources = append(n.newsSources, src)
	}
	n.mu.Unlock()

	n.router.RegisterWorldFeedSource(src)
	if f := fetcherFor(src); f != nil {
		n.news.Register(src.Name, f, newsfeed.PriorityThresholds{High: 300, Breaking: 1000})
	}
}

func fetcherFor(src types.WorldFeedSource) newsfeed.Fetcher {
	switch src.Type {
	case "hackernews":
		return newsfeed.NewHackerNews(10)
	case "arxiv":
		return newsfeed.NewArXiv("cs.AI", 10)
	case "semantic-scholar":
		return newsfeed.NewSemanticScholar("", 10)
	}
	return nil
}

// NewsSources lists the registered news sources in registration order.
func (n *Network) NewsSources() []types.WorldFeedSource {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]types.WorldFeedSource(nil), n.newsSources...)
}

// EnclaveSystemInitialized reports whether InitializeEnclaveSystem ran.
func (n *Network) EnclaveSystemInitialized() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enclavesReady
}

func (n *Network) autoSubscribe(ctx context.Context, seedID string, topics []string) {
	for _, e := range n.enclaves.MatchByTags(topics) {
		n.enclaves.Subscribe(ctx, seedID, e.Name)
	}
}

// enclavePosts feeds the browsing engine: published posts by enclave
// members other than the reader, newest first.
func (n *Network) enclavePosts(name, seedID string, limit int) []*types.WonderlandPost {
	members := make(map[string]bool)
	for _, m := range n.enclaves.Members(name) {
		if m != seedID {
			members[m] = true
		}
	}
	n.mu.RLock()
	var out []*types.WonderlandPost
	for _, p := range n.posts {
		if p.Status == types.PostPublished && members[p.SeedID] {
			out = append(out, p.Clone())
		}
	}
	n.mu.RUnlock()
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RunBrowsingSession lets seedID browse its enclaves. It returns nil when
// the enclave system is not initialized or the citizen is inactive.
func (n *Network) RunBrowsingSession(ctx context.Context, seedID string) *types.BrowsingSessionRecord {
	n.mu.RLock()
	ready := n.enclavesReady
	citizen, ok := n.citizens[seedID]
	active := ok && citizen.IsActive
	var traits types.HEXACOTraits
	if ok {
		traits = citizen.Personality
	}
	browsingStore := n.browsingStore
	browser := n.browser
	n.mu.RUnlock()
	if !ready || !active || browser == nil {
		return nil
	}

	res := browser.StartSession(seedID, traits)
	rec := &types.BrowsingSessionRecord{
		SessionID:       types.NewSessionID(),
		SeedID:          seedID,
		EnclavesVisited: res.EnclavesVisited,
		PostsRead:       res.PostsRead,
		CommentsWritten: res.CommentsWritten,
		VotesCast:       res.VotesCast,
		Actions:         res.Actions,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
	}

	for _, step := range res.Actions {
		switch step.Action {
		case types.ActionUpvote:
			n.RecordEngagement(ctx, step.PostID, seedID, ActionLike)
			n.awardXP(seedID, leveling.VoteCast)
		case types.ActionDownvote:
			n.awardXP(seedID, leveling.VoteCast)
		case types.ActionComment:
			n.awardXP(seedID, leveling.CommentWritten)
			n.emitBrowsingReply(ctx, seedID, step)
		}
	}

	n.mu.Lock()
	n.sessions[seedID] = rec.Clone()
	n.mu.Unlock()
	if browsingStore != nil {
		if err := browsingStore.SaveSession(ctx, rec); err != nil {
			slog.Warn("persist browsing session failed", "seed_id", seedID, "error", err)
		}
	}

	if rec.PostsRead > 0 {
		n.awardXP(seedID, leveling.ViewReceived)
	}
	n.mood.DecayToBaseline(seedID, 1)

	slog.Info("browsing session finished", "seed_id", seedID, "enclaves", len(rec.EnclavesVisited),
		"posts_read", rec.PostsRead, "votes", rec.VotesCast, "comments", rec.CommentsWritten)
	return rec
}

// emitBrowsingReply asks the commenting agent to write its reply.
func (n *Network) emitBrowsingReply(ctx context.Context, seedID string, step types.BrowsingStep) {
	post := n.Post(step.PostID)
	if post == nil {
		return
	}
	rc := step.ReplyContext
	if rc == "" {
		rc = types.ReplyNeutral
	}
	if _, err := n.router.EmitAgentReply(ctx, post.PostID, post.SeedID, seedID, post.Content, rc, types.PriorityNormal); err != nil {
		slog.Warn("emit browsing reply failed", "seed_id", seedID, "post_id", post.PostID, "error", err)
	}
}

func (n *Network) awardXP(seedID string, action leveling.Action) {
	n.mu.Lock()
	c, ok := n.citizens[seedID]
	var up *leveling.LevelUp
	if ok {
		_, up = n.leveling.Apply(c, action)
	}
	n.mu.Unlock()
	n.leveling.Notify(up)
}

// LastBrowsingSession returns the latest session for seedID, consulting
// the browsing store when none ran in this process.
func (n *Network) LastBrowsingSession(ctx context.Context, seedID string) *types.BrowsingSessionRecord {
	n.mu.RLock()
	rec, ok := n.sessions[seedID]
	store := n.browsingStore
	n.mu.RUnlock()
	if ok {
		return rec.Clone()
	}
	if store == nil {
		return nil
	}
	rec, err := store.LastSession(ctx, seedID)
	if err != nil {
		slog.Warn("load browsing session failed", "seed_id", seedID, "error", err)
		return nil
	}
	return rec
}

// BrowsingHistory returns up to limit persisted sessions for seedID.
func (n *Network) BrowsingHistory(ctx context.Context, seedID string, limit int) ([]*types.BrowsingSessionRecord, error) {
	n.mu.RLock()
	store := n.browsingStore
	n.mu.RUnlock()
	if store == nil {
		if rec := n.LastBrowsingSession(ctx, seedID); rec != nil {
			return []*types.BrowsingSessionRecord{rec}, nil
		}
		return nil, nil
	}
	return store.SessionHistory(ctx, seedID, limit)
}

func (n *Network) browseAll(ctx context.Context) {
	for _, c := range n.ListCitizens() {
		n.RunBrowsingSession(ctx, c.SeedID)
	}
}

// recordPromptAdaptation appends an archetype shift to the seed's prompt
// evolution history when a store is configured.
func (n *Network) recordPromptAdaptation(s newsroom.VoiceSnapshot) {
	n.mu.RLock()
	store := n.promptStore
	n.mu.RUnlock()
	if store == nil {
		return
	}
	ctx := context.Background()
	state, err := store.LoadPromptEvolution(ctx, s.SeedID)
	if err != nil {
		slog.Warn("load prompt evolution failed", "seed_id", s.SeedID, "error", err)
		return
	}
	if state == nil {
		state = &types.PromptEvolutionState{SeedID: s.SeedID}
	}
	state.Adaptations = append(state.Adaptations,
		fmt.Sprintf("voice %s -> %s on %s/%s", s.PreviousArchetype, s.Profile.Archetype, s.StimulusType, s.StimulusPriority))
	if len(state.Adaptations) > maxAdaptations {
		state.Adaptations = state.Adaptations[len(state.Adaptations)-maxAdaptations:]
	}
	state.Version++
	state.UpdatedAt = n.now()
	if err := store.SavePromptEvolution(ctx, state); err != nil {
		slog.Warn("save prompt evolution failed", "seed_id", s.SeedID, "error", err)
	}
}

// PromptEvolution returns the stored prompt evolution state for seedID.
func (n *Network) PromptEvolution(ctx context.Context, seedID string) (*types.PromptEvolutionState, error) {
	n.mu.RLock()
	store := n.promptStore
	n.mu.RUnlock()
	if store == nil {
		return nil, nil
	}
	return store.LoadPromptEvolution(ctx, seedID)
}
