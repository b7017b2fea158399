// internal/network/network.go
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/user/wonderland/internal/budget"
	"github.com/user/wonderland/internal/enclave"
	"github.com/user/wonderland/internal/leveling"
	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/mood"
	"github.com/user/wonderland/internal/newsfeed"
	"github.com/user/wonderland/internal/newsroom"
	"github.com/user/wonderland/internal/stimulus"
	"github.com/user/wonderland/internal/tools"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
	"github.com/user/wonderland/pkg/llm"
)

var (
	ErrDuplicateCitizen = errors.New("citizen already registered")
	ErrUnknownCitizen   = errors.New("citizen not registered")
)

// DefaultFeedLimit is used when FeedOptions.Limit is not positive.
const DefaultFeedLimit = 50

// Config holds the network's identity and injectable collaborators.
type Config struct {
	NetworkID        string
	WorldFeedSources []types.WorldFeedSource
	Signer           manifest.Signer
	Budget           *budget.Counter
	Router           stimulus.Options
	Now              func() time.Time
	Rand             func() float64
}

// FeedOptions filters Feed.
type FeedOptions struct {
	Limit    int
	SeedID   string
	MinLevel types.Level
}

type (
	PostListener     func(ctx context.Context, post *types.WonderlandPost)
	ApprovalListener func(ctx context.Context, entry *types.ApprovalQueueEntry)
	DecisionListener func(entry *types.ApprovalQueueEntry)
)

// Network wires citizens, their agencies, the router, mood and the
// enclave system together.
type Network struct {
	cfg      Config
	now      func() time.Time
	rand     func() float64
	router   *stimulus.Router
	mood     *mood.Engine
	inertia  *mood.Inertia
	leveling *leveling.Engine
	enclaves *enclave.Registry
	browser  *enclave.BrowsingEngine
	news     *newsfeed.Ingester

	mu            sync.RWMutex
	running       bool
	enclavesReady bool
	citizens      map[string]*types.CitizenProfile
	agencies      map[string]*newsroom.Agency
	posts         map[string]*types.WonderlandPost
	sessions      map[string]*types.BrowsingSessionRecord
	newsSources   []types.WorldFeedSource
	defaultLLM    llm.Provider
	defaultTools  []tools.Tool
	estimator     voice.MoodEstimator
	postStore     types.PostStore
	browsingStore types.BrowsingStore
	promptStore   types.PromptEvolutionStore
	moodStore     types.MoodStore

	telMu     sync.Mutex
	telemetry map[string]*AgentBehaviorTelemetry

	cbMu               sync.RWMutex
	telemetryListeners []TelemetryListener
	postListeners      []PostListener
	approvalListeners  []ApprovalListener
	decisionListeners  []DecisionListener
}

func New(cfg Config) *Network {
	if cfg.NetworkID == "" {
		cfg.NetworkID = "wonderland"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Router.Now == nil {
		cfg.Router.Now = cfg.Now
	}
	router := stimulus.NewRouter(cfg.Router)
	for _, src := range cfg.WorldFeedSources {
		router.RegisterWorldFeedSource(src)
	}
	return &Network{
		cfg:       cfg,
		now:       cfg.Now,
		rand:      cfg.Rand,
		router:    router,
		mood:      mood.NewEngine(),
		inertia:   mood.NewInertia(),
		leveling:  leveling.New(),
		enclaves:  enclave.NewRegistry(),
		news:      newsfeed.NewIngester(router),
		citizens:  make(map[string]*types.CitizenProfile),
		agencies:  make(map[string]*newsroom.Agency),
		posts:     make(map[string]*types.WonderlandPost),
		sessions:  make(map[string]*types.BrowsingSessionRecord),
		telemetry: make(map[string]*AgentBehaviorTelemetry),
	}
}

func (n *Network) ID() string                       { return n.cfg.NetworkID }
func (n *Network) Router() *stimulus.Router         { return n.router }
func (n *Network) MoodEngine() *mood.Engine         { return n.mood }
func (n *Network) Leveling() *leveling.Engine       { return n.leveling }
func (n *Network) Enclaves() *enclave.Registry      { return n.enclaves }
func (n *Network) NewsIngester() *newsfeed.Ingester { return n.news }

// Start begins processing stimuli and listens for "browse" cron ticks.
func (n *Network) Start() {
	n.mu.Lock()
	n.running = true
	count := len(n.citizens)
	n.mu.Unlock()

	n.router.Subscribe(browseSubscriber, func(ctx context.Context, ev *types.StimulusEvent) error {
		if !n.isRunning() || ev.Payload.ScheduleName != BrowseSchedule {
			return nil
		}
		n.browseAll(ctx)
		return nil
	}, stimulus.Filter{Types: []types.StimulusType{types.StimulusCronTick}})

	slog.Info("network started", "network_id", n.cfg.NetworkID, "citizens", count)
}

// Stop halts stimulus processing. Subscriptions stay registered.
func (n *Network) Stop() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
	n.router.Unsubscribe(browseSubscriber)
	slog.Info("network stopped", "network_id", n.cfg.NetworkID)
}

// Close stops the network and the router's delivery lanes.
func (n *Network) Close() {
	n.Stop()
	n.router.Close()
}

func (n *Network) isRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// RegisterCitizen creates the citizen's agency and subscribes it to the
// router.
func (n *Network) RegisterCitizen(ctx context.Context, cfg types.NewsroomConfig) (*types.CitizenProfile, error) {
	seedID := cfg.Seed.SeedID
	if seedID == "" {
		return nil, fmt.Errorf("register citizen: seed id is required")
	}

	n.mu.Lock()
	if _, ok := n.citizens[seedID]; ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCitizen, seedID)
	}
	citizen := &types.CitizenProfile{
		SeedID:           seedID,
		OwnerID:          cfg.OwnerID,
		DisplayName:      cfg.Seed.Name,
		Bio:              cfg.Seed.Description,
		Personality:      cfg.Seed.HEXACOTraits,
		Level:            types.LevelNewcomer,
		JoinedAt:         n.now(),
		IsActive:         true,
		SubscribedTopics: append([]string(nil), cfg.WorldFeedTopics...),
		PostRateLimit:    cfg.MaxPostsPerHour,
	}

	agency := newsroom.New(cfg, newsroom.Options{
		Signer: n.cfg.Signer,
		Now:    n.now,
		Rand:   n.rand,
		Budget: n.cfg.Budget,
	})
	agency.SetMoodSnapshotProvider(func() newsroom.MoodSnapshot {
		st, ok := n.mood.GetState(seedID)
		if !ok {
			return newsroom.MoodSnapshot{}
		}
		return newsroom.MoodSnapshot{Label: n.mood.GetMoodLabel(seedID), State: &st}
	})
	if n.defaultLLM != nil {
		agency.SetLLM(n.defaultLLM)
	}
	if len(n.defaultTools) > 0 {
		agency.RegisterTools(n.defaultTools)
	}
	agency.OnPublish(func(ctx context.Context, post *types.WonderlandPost) error {
		n.handlePostPublished(ctx, post)
		return nil
	})
	agency.OnApprovalRequired(func(ctx context.Context, e *types.ApprovalQueueEntry) error {
		n.emitApprovalRequired(ctx, e)
		return nil
	})
	agency.OnDecision(n.emitDecision)
	agency.OnVoiceProfile(n.recordVoiceTelemetry)

	n.citizens[seedID] = citizen
	n.agencies[seedID] = agency
	ready := n.enclavesReady
	out := citizen.Clone()
	n.mu.Unlock()

	n.router.Subscribe(seedID, func(ctx context.Context, ev *types.StimulusEvent) error {
		if !n.isRunning() {
			return nil
		}
		n.applyStimulusMoodImpact(ctx, seedID, ev)
		_, err := agency.ProcessStimulus(ctx, ev)
		return err
	}, stimulus.Filter{Types: types.AllStimulusTypes, Categories: cfg.WorldFeedTopics})

	n.telMu.Lock()
	n.ensureTelemetry(seedID)
	n.telMu.Unlock()
	n.inertia.Ensure(seedID)

	n.mood.LoadFromPersistence(ctx, seedID, cfg.Seed.HEXACOTraits)
	if ready {
		n.autoSubscribe(ctx, seedID, cfg.WorldFeedTopics)
	}

	slog.Info("citizen registered", "seed_id", seedID, "name", citizen.DisplayName, "owner_id", cfg.OwnerID)
	return out, nil
}

// UnregisterCitizen detaches the citizen from the router and marks the
// profile inactive. Its posts stay in the feed.
func (n *Network) UnregisterCitizen(seedID string) {
	n.router.Unsubscribe(seedID)
	n.mu.Lock()
	delete(n.agencies, seedID)
	if c, ok := n.citizens[seedID]; ok {
		c.IsActive = false
	}
	n.mu.Unlock()
	n.inertia.Forget(seedID)
	slog.Info("citizen unregistered", "seed_id", seedID)
}

// SubmitTip routes a human tip into the network and returns its event id.
func (n *Network) SubmitTip(ctx context.Context, tip types.Tip) (string, error) {
	ev, err := n.router.IngestTip(ctx, tip)
	if err != nil {
		return "", fmt.Errorf("submit tip: %w", err)
	}
	return ev.EventID, nil
}

func (n *Network) agency(seedID string) *newsroom.Agency {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.agencies[seedID]
}

// ApprovePost publishes a pending post. It returns nil, nil when the
// citizen or entry is unknown.
func (n *Network) ApprovePost(ctx context.Context, seedID, queueID string) (*types.WonderlandPost, error) {
	a := n.agency(seedID)
	if a == nil {
		return nil, nil
	}
	post, err := a.ApprovePost(ctx, queueID)
	if err != nil || post == nil {
		return nil, err
	}
	return n.Post(post.PostID), nil
}

// RejectPost discards a pending post. Unknown ids are ignored.
func (n *Network) RejectPost(seedID, queueID, reason string) *types.ApprovalQueueEntry {
	a := n.agency(seedID)
	if a == nil {
		return nil
	}
	return a.RejectPost(queueID, reason)
}

// ExpireApprovals rejects every pending entry whose timeout has elapsed.
func (n *Network) ExpireApprovals(now time.Time) []*types.ApprovalQueueEntry {
	n.mu.RLock()
	agencies := make([]*newsroom.Agency, 0, len(n.agencies))
	for _, a := range n.agencies {
		agencies = append(agencies, a)
	}
	n.mu.RUnlock()

	var out []*types.ApprovalQueueEntry
	for _, a := range agencies {
		out = append(out, a.ExpirePending(now)...)
	}
	return out
}

// ApprovalQueue lists pending entries owned by ownerID, oldest first.
func (n *Network) ApprovalQueue(ownerID string) []*types.ApprovalQueueEntry {
	n.mu.RLock()
	agencies := make([]*newsroom.Agency, 0, len(n.agencies))
	for _, a := range n.agencies {
		agencies = append(agencies, a)
	}
	n.mu.RUnlock()

	var out []*types.ApprovalQueueEntry
	for _, a := range agencies {
		for _, e := range a.PendingApprovals() {
			if e.OwnerID == ownerID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

// Feed returns published posts, newest first.
func (n *Network) Feed(opts FeedOptions) []*types.WonderlandPost {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	n.mu.RLock()
	var out []*types.WonderlandPost
	for _, p := range n.posts {
		if p.Status != types.PostPublished {
			continue
		}
		if opts.SeedID != "" && p.SeedID != opts.SeedID {
			continue
		}
		if opts.MinLevel > 0 && p.AgentLevelAtPost < opts.MinLevel {
			continue
		}
		out = append(out, p.Clone())
	}
	n.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (n *Network) Citizen(seedID string) *types.CitizenProfile {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.citizens[seedID].Clone()
}

// ListCitizens returns active citizens sorted by seed id.
func (n *Network) ListCitizens() []*types.CitizenProfile {
	n.mu.RLock()
	out := make([]*types.CitizenProfile, 0, len(n.citizens))
	for _, c := range n.citizens {
		if c.IsActive {
			out = append(out, c.Clone())
		}
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SeedID < out[j].SeedID })
	return out
}

func (n *Network) Post(postID string) *types.WonderlandPost {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.posts[postID].Clone()
}

// Agency exposes a citizen's newsroom, or nil.
func (n *Network) Agency(seedID string) *newsroom.Agency {
	return n.agency(seedID)
}

// SetLLMForAll sets the writer model for every current and future citizen.
func (n *Network) SetLLMForAll(p llm.Provider) {
	n.mu.Lock()
	n.defaultLLM = p
	agencies := make([]*newsroom.Agency, 0, len(n.agencies))
	for _, a := range n.agencies {
		agencies = append(agencies, a)
	}
	n.mu.Unlock()
	for _, a := range agencies {
		a.SetLLM(p)
	}
}

func (n *Network) SetLLMForCitizen(seedID string, p llm.Provider) error {
	a := n.agency(seedID)
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCitizen, seedID)
	}
	a.SetLLM(p)
	return nil
}

// RegisterToolsForAll offers list to every citizen and to future ones.
// Tools are merged by name with earlier registrations.
func (n *Network) RegisterToolsForAll(list []tools.Tool) {
	n.mu.Lock()
	n.defaultTools = tools.Merge(n.defaultTools, list)
	agencies := make([]*newsroom.Agency, 0, len(n.agencies))
	for _, a := range n.agencies {
		agencies = append(agencies, a)
	}
	n.mu.Unlock()
	for _, a := range agencies {
		a.RegisterTools(list)
	}
}

func (n *Network) RegisterToolsForCitizen(seedID string, list []tools.Tool) error {
	a := n.agency(seedID)
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCitizen, seedID)
	}
	a.RegisterTools(list)
	return nil
}

// SetSentimentEstimator sets the estimator tried before the keyword
// heuristic. Nil restores the heuristic alone.
func (n *Network) SetSentimentEstimator(e voice.MoodEstimator) {
	n.mu.Lock()
	n.estimator = e
	n.mu.Unlock()
}

func (n *Network) SetPostStore(s types.PostStore) {
	n.mu.Lock()
	n.postStore = s
	n.mu.Unlock()
}

func (n *Network) SetMoodStore(s types.MoodStore) {
	n.mu.Lock()
	n.moodStore = s
	n.mu.Unlock()
	n.mood.SetStore(s)
}

func (n *Network) SetEnclaveStore(s types.EnclaveStore) {
	n.enclaves.SetStore(s)
}

func (n *Network) SetBrowsingStore(s types.BrowsingStore) {
	n.mu.Lock()
	n.browsingStore = s
	n.mu.Unlock()
}

func (n *Network) SetPromptEvolutionStore(s types.PromptEvolutionStore) {
	n.mu.Lock()
	n.promptStore = s
	n.mu.Unlock()
}

// RestorePosts loads up to limit persisted posts into the feed, newest
// first. Posts already held in memory win over stored copies.
func (n *Network) RestorePosts(ctx context.Context, limit int) (int, error) {
	n.mu.RLock()
	store := n.postStore
	n.mu.RUnlock()
	if store == nil {
		return 0, nil
	}
	posts, err := store.ListPosts(ctx, "", limit)
	if err != nil {
		return 0, fmt.Errorf("restore posts: %w", err)
	}
	restored := 0
	n.mu.Lock()
	for _, p := range posts {
		if _, ok := n.posts[p.PostID]; ok {
			continue
		}
		n.posts[p.PostID] = p
		restored++
	}
	n.mu.Unlock()
	return restored, nil
}

// OnPostPublished registers fn to run after each post enters the feed.
func (n *Network) OnPostPublished(fn PostListener) {
	n.cbMu.Lock()
	n.postListeners = append(n.postListeners, fn)
	n.cbMu.Unlock()
}

// OnApprovalRequired registers fn to run when a post is queued for review.
func (n *Network) OnApprovalRequired(fn ApprovalListener) {
	n.cbMu.Lock()
	n.approvalListeners = append(n.approvalListeners, fn)
	n.cbMu.Unlock()
}

// OnApprovalDecision registers fn to run when an entry is approved,
// rejected or expired.
func (n *Network) OnApprovalDecision(fn DecisionListener) {
	n.cbMu.Lock()
	n.decisionListeners = append(n.decisionListeners, fn)
	n.cbMu.Unlock()
}

func (n *Network) handlePostPublished(ctx context.Context, post *types.WonderlandPost) {
	n.mu.Lock()
	var up *leveling.LevelUp
	if author, ok := n.citizens[post.SeedID]; ok {
		post.AgentLevelAtPost = author.Level
		author.TotalPosts++
		_, up = n.leveling.Apply(author, leveling.PostPublished)
	}
	stored := post.Clone()
	n.posts[post.PostID] = stored
	store := n.postStore
	n.mu.Unlock()

	n.leveling.Notify(up)
	if store != nil {
		if err := store.SavePost(ctx, stored.Clone()); err != nil {
			slog.Error("post store failed", "post_id", post.PostID, "seed_id", post.SeedID, "error", err)
		}
	}

	n.cbMu.RLock()
	listeners := make([]PostListener, len(n.postListeners))
	copy(listeners, n.postListeners)
	n.cbMu.RUnlock()
	for _, fn := range listeners {
		isolate("post", post.SeedID, func() { fn(ctx, stored.Clone()) })
	}
}

func (n *Network) emitApprovalRequired(ctx context.Context, e *types.ApprovalQueueEntry) {
	n.cbMu.RLock()
	listeners := make([]ApprovalListener, len(n.approvalListeners))
	copy(listeners, n.approvalListeners)
	n.cbMu.RUnlock()
	for _, fn := range listeners {
		c := *e
		isolate("approval", e.SeedID, func() { fn(ctx, &c) })
	}
}

func (n *Network) emitDecision(e *types.ApprovalQueueEntry) {
	n.cbMu.RLock()
	listeners := make([]DecisionListener, len(n.decisionListeners))
	copy(listeners, n.decisionListeners)
	n.cbMu.RUnlock()
	for _, fn := range listeners {
		c := *e
		isolate("decision", e.SeedID, func() { fn(&c) })
	}
}

func isolate(kind, seedID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("network listener panicked", "kind", kind, "seed_id", seedID, "panic", r)
		}
	}()
	fn()
}

// Stats summarizes the network.
type Stats struct {
	NetworkID      string         `json:"networkId"`
	Running        bool           `json:"running"`
	TotalCitizens  int            `json:"totalCitizens"`
	ActiveCitizens int            `json:"activeCitizens"`
	TotalPosts     int            `json:"totalPosts"`
	Stimulus       stimulus.Stats `json:"stimulusStats"`
	EnclaveSystem  EnclaveStats   `json:"enclaveSystem"`
}

type EnclaveStats struct {
	Initialized      bool `json:"initialized"`
	EnclaveCount     int  `json:"enclaveCount"`
	NewsSourceCount  int  `json:"newsSourceCount"`
	BrowsingSessions int  `json:"browsingSessions"`
}

func (n *Network) Stats() Stats {
	n.mu.RLock()
	s := Stats{
		NetworkID:     n.cfg.NetworkID,
		Running:       n.running,
		TotalCitizens: len(n.citizens),
		TotalPosts:    len(n.posts),
		EnclaveSystem: EnclaveStats{
			Initialized:      n.enclavesReady,
			NewsSourceCount:  len(n.newsSources),
			BrowsingSessions: len(n.sessions),
		},
	}
	for _, c := range n.citizens {
		if c.IsActive {
			s.ActiveCitizens++
		}
	}
	n.mu.RUnlock()
	s.EnclaveSystem.EnclaveCount = len(n.enclaves.List())
	s.Stimulus = n.router.Stats()
	return s
}

func sortNewestFirst(posts []*types.WonderlandPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].PublishedAt, posts[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

func sortTelemetry(list []*AgentBehaviorTelemetry) {
	sort.Slice(list, func(i, j int) bool { return list[i].SeedID < list[j].SeedID })
}
