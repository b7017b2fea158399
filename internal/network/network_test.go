// internal/network/network_test.go
package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/pkg/llm"
)

const idleTimeout = 5 * time.Second

func citizenConfig(seedID, owner string, conscientiousness float64, topics ...string) types.NewsroomConfig {
	if len(topics) == 0 {
		topics = []string{"technology"}
	}
	return types.NewsroomConfig{
		Seed: types.SeedConfig{
			SeedID: seedID,
			Name:   seedID,
			HEXACOTraits: types.HEXACOTraits{
				HonestyHumility:   0.72,
				Emotionality:      0.56,
				Extraversion:      0.63,
				Agreeableness:     0.66,
				Conscientiousness: conscientiousness,
				Openness:          0.76,
			},
		},
		OwnerID:         owner,
		WorldFeedTopics: topics,
		MaxPostsPerHour: 5,
	}
}

func fixedLLM(content string) llm.Provider {
	return llm.ProviderFunc(func(context.Context, []llm.Message, []llm.Tool, ...llm.CallOption) (*llm.Response, error) {
		return &llm.Response{Content: content, Model: "test-model"}, nil
	})
}

func newNetwork(t *testing.T) *Network {
	t.Helper()
	n := New(Config{NetworkID: "test-net"})
	t.Cleanup(n.Close)
	return n
}

func waitIdle(t *testing.T, n *Network) {
	t.Helper()
	require.True(t, n.Router().WaitIdle(idleTimeout), "router did not drain")
}

func TestLikeOnInternalThoughtPostUpdatesTelemetry(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)

	_, err := n.RegisterCitizen(ctx, citizenConfig("author", "owner-1", 0.75))
	require.NoError(t, err)
	_, err = n.RegisterCitizen(ctx, citizenConfig("reactor", "owner-2", 0.75))
	require.NoError(t, err)
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.Start()
	require.NoError(t, n.SetLLMForCitizen("author", fixedLLM("Telemetry target post")))

	_, err = n.Router().EmitInternalThought(ctx, "Share a concise systems update.", "author", types.PriorityHigh)
	require.NoError(t, err)
	waitIdle(t, n)

	feed := n.Feed(FeedOptions{SeedID: "author"})
	require.Len(t, feed, 1)
	require.Equal(t, "Telemetry target post", feed[0].Content)

	require.True(t, n.RecordEngagement(ctx, feed[0].PostID, "reactor", ActionLike))

	tel := n.AgentBehaviorTelemetry("author")
	require.NotNil(t, tel)
	require.Equal(t, 1, tel.Engagement.Received.Likes)
	require.Greater(t, tel.Engagement.MoodDelta.Valence, 0.0)
	require.GreaterOrEqual(t, tel.Mood.Updates, 1)
	require.Equal(t, SourceEngagement, tel.Mood.LastSource)
	require.Equal(t, "received_like", tel.Mood.LastTrigger)

	post := n.Post(feed[0].PostID)
	require.Equal(t, 1, post.Engagement.Likes)
	require.Equal(t, 30, n.Citizen("author").XP, "25 for the post plus 5 for the like")
}

func TestForcedMoodShiftSwitchesArchetype(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)

	_, err := n.RegisterCitizen(ctx, citizenConfig("voice", "owner-1", 0.86))
	require.NoError(t, err)
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.Start()
	n.SetLLMForAll(fixedLLM("Voice check"))

	var mu sync.Mutex
	var events []TelemetryEvent
	n.OnTelemetryUpdate(func(ev TelemetryEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	_, err = n.Router().IngestWorldFeed(ctx, types.WorldFeedItem{
		Headline:   "Emergency patch completed without downtime.",
		Category:   "technology",
		SourceName: "Reuters",
	}, types.PriorityBreaking)
	require.NoError(t, err)
	waitIdle(t, n)

	_, ok := n.MoodEngine().ApplyDelta("voice", types.MoodDelta{Valence: -0.9, Arousal: 0.9, Dominance: 0.9, Trigger: "forced"})
	require.True(t, ok)

	_, err = n.Router().EmitInternalThought(ctx, "Challenge a weak assumption from the latest thread and propose a better model.", "voice", types.PriorityNormal)
	require.NoError(t, err)
	waitIdle(t, n)

	tel := n.AgentBehaviorTelemetry("voice")
	require.GreaterOrEqual(t, tel.Voice.Updates, 2)
	require.GreaterOrEqual(t, tel.Voice.ArchetypeSwitches, 1)
	require.Equal(t, types.StimulusInternalThought, tel.Voice.LastStimulusType)

	mu.Lock()
	defer mu.Unlock()
	voiceEvents := 0
	for _, ev := range events {
		if ev.Type == TelemetryVoiceProfile {
			voiceEvents++
		}
	}
	require.Equal(t, 2, voiceEvents)
}

func TestRegisterCitizen(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)

	c, err := n.RegisterCitizen(ctx, citizenConfig("ada", "owner-1", 0.75, "logic", "Debate"))
	require.NoError(t, err)
	require.Equal(t, types.LevelNewcomer, c.Level)
	require.True(t, c.IsActive)
	require.Equal(t, 5, c.PostRateLimit)
	require.Equal(t, []string{"logic", "Debate"}, c.SubscribedTopics)

	_, err = n.RegisterCitizen(ctx, citizenConfig("ada", "owner-1", 0.75))
	require.ErrorIs(t, err, ErrDuplicateCitizen)
	require.ErrorIs(t, n.SetLLMForCitizen("ghost", fixedLLM("x")), ErrUnknownCitizen)
	require.ErrorIs(t, n.RegisterToolsForCitizen("ghost", nil), ErrUnknownCitizen)

	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	require.Equal(t, []string{"arena", "proof-theory"}, n.Enclaves().Subscriptions("ada"))

	_, err = n.RegisterCitizen(ctx, citizenConfig("bo", "owner-1", 0.75, "art"))
	require.NoError(t, err)
	require.Equal(t, []string{"creative-chaos"}, n.Enclaves().Subscriptions("bo"))
	_, ok := n.MoodEngine().GetState("bo")
	require.True(t, ok, "late registrations get a mood")

	n.UnregisterCitizen("ada")
	require.False(t, n.Citizen("ada").IsActive)
	require.False(t, n.Router().HasSubscription("ada"))
	require.Len(t, n.ListCitizens(), 1)
	require.Nil(t, n.Agency("ada"))
}

func TestInitializeEnclaveSystemIsIdempotent(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	require.False(t, n.EnclaveSystemInitialized())
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	require.NoError(t, n.InitializeEnclaveSystem(ctx))

	enclaves := n.Enclaves().List()
	require.Len(t, enclaves, 6)
	for _, e := range enclaves {
		require.Equal(t, SystemCurator, e.CreatorSeedID)
	}
	sources := n.NewsSources()
	require.Len(t, sources, 3)
	require.Equal(t, "HackerNews", sources[0].Name)
	require.Equal(t, 5*time.Minute, sources[0].Interval)
	require.Equal(t, []string{"HackerNews", "SemanticScholar", "arXiv-CS"}, n.NewsIngester().Sources())

	stats := n.Stats()
	require.True(t, stats.EnclaveSystem.Initialized)
	require.Equal(t, 6, stats.EnclaveSystem.EnclaveCount)
	require.Equal(t, 3, stats.EnclaveSystem.NewsSourceCount)
	require.Equal(t, 3, stats.Stimulus.Sources)
}

func TestFeedOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	n := New(Config{Now: now, Rand: func() float64 { return 0 }})
	t.Cleanup(n.Close)

	_, err := n.RegisterCitizen(ctx, citizenConfig("a", "o", 0.75))
	require.NoError(t, err)
	_, err = n.RegisterCitizen(ctx, citizenConfig("b", "o", 0.75))
	require.NoError(t, err)
	n.Start()

	for i := 0; i < 3; i++ {
		_, err := n.SubmitTip(ctx, types.Tip{Content: "tip", Targets: []string{"a"}})
		require.NoError(t, err)
		waitIdle(t, n)
	}
	_, err = n.SubmitTip(ctx, types.Tip{Content: "for b", Targets: []string{"b"}})
	require.NoError(t, err)
	waitIdle(t, n)

	all := n.Feed(FeedOptions{})
	require.Len(t, all, 4)
	require.Equal(t, "b", all[0].SeedID)
	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].PublishedAt.After(*all[i].PublishedAt))
	}
	require.Len(t, n.Feed(FeedOptions{SeedID: "a", Limit: 2}), 2)
	require.Empty(t, n.Feed(FeedOptions{MinLevel: types.LevelResident}))

	stats := n.Stats()
	require.Equal(t, 4, stats.TotalPosts)
	require.Equal(t, 3, n.Citizen("a").TotalPosts)
}

func TestEngagementRules(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	_, err := n.RegisterCitizen(ctx, citizenConfig("author", "o", 0.75))
	require.NoError(t, err)
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.Start()
	_, err = n.SubmitTip(ctx, types.Tip{Content: "hello", Targets: []string{"author"}})
	require.NoError(t, err)
	waitIdle(t, n)
	postID := n.Feed(FeedOptions{})[0].PostID

	var mu sync.Mutex
	var events []TelemetryEvent
	n.OnTelemetryUpdate(func(ev TelemetryEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	n.OnTelemetryUpdate(func(TelemetryEvent) { panic("listener bug") })

	before := n.AgentBehaviorTelemetry("author")
	require.True(t, n.RecordEngagement(ctx, postID, "author", ActionBoost))
	after := n.AgentBehaviorTelemetry("author")
	require.Empty(t, cmp.Diff(before, after), "self engagement must not touch telemetry")
	require.Equal(t, 1, n.Post(postID).Engagement.Boosts)
	require.Equal(t, 25+15, n.Citizen("author").XP)

	require.True(t, n.RecordEngagement(ctx, postID, "fan", ActionView))
	require.True(t, n.RecordEngagement(ctx, postID, "fan", ActionEmojiReaction))
	require.False(t, n.RecordEngagement(ctx, postID, "fan", EngagementAction("shrug")))
	require.False(t, n.RecordEngagement(ctx, "missing", "fan", ActionLike))

	tel := n.AgentBehaviorTelemetry("author")
	require.Equal(t, 1, tel.Engagement.Received.Views)
	require.Equal(t, 1, tel.Engagement.Received.EmojiReactions)
	require.Equal(t, 0, tel.Engagement.Received.Boosts)
	require.Equal(t, SourceEmoji, tel.Mood.LastSource)
	require.InDelta(t, 0.04, tel.Engagement.MoodDelta.Valence, 1e-9)

	mu.Lock()
	defer mu.Unlock()
	var impacts []TelemetryEvent
	for _, ev := range events {
		if ev.Type == TelemetryEngagementImpact {
			impacts = append(impacts, ev)
		}
	}
	require.Len(t, impacts, 2)
	require.Equal(t, ActionView, impacts[0].Action)
	require.Equal(t, PADDelta{}, impacts[0].Delta)
	require.Equal(t, ActionEmojiReaction, impacts[1].Action)
}

func TestEngagementMoodDeltaIsBounded(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	_, err := n.RegisterCitizen(ctx, citizenConfig("author", "o", 0.75))
	require.NoError(t, err)
	n.Start()
	_, err = n.SubmitTip(ctx, types.Tip{Content: "hello", Targets: []string{"author"}})
	require.NoError(t, err)
	waitIdle(t, n)
	postID := n.Feed(FeedOptions{})[0].PostID

	for i := 0; i < 100; i++ {
		n.RecordEngagement(ctx, postID, "fan", ActionBoost)
	}
	tel := n.AgentBehaviorTelemetry("author")
	require.Equal(t, 5.0, tel.Engagement.MoodDelta.Valence)
	require.InDelta(t, 3.0, tel.Engagement.MoodDelta.Arousal, 1e-9)
	require.GreaterOrEqual(t, tel.Mood.Updates, 100, "engagement moves the mood engine before the enclave system starts")
}

func TestApprovalFlow(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	cfg := citizenConfig("careful", "owner-7", 0.75)
	cfg.RequireApproval = true
	cfg.ApprovalTimeoutMs = 1000
	_, err := n.RegisterCitizen(ctx, cfg)
	require.NoError(t, err)
	n.Start()

	var mu sync.Mutex
	var required, decided []*types.ApprovalQueueEntry
	var published []*types.WonderlandPost
	n.OnApprovalRequired(func(_ context.Context, e *types.ApprovalQueueEntry) {
		mu.Lock()
		required = append(required, e)
		mu.Unlock()
	})
	n.OnApprovalDecision(func(e *types.ApprovalQueueEntry) {
		mu.Lock()
		decided = append(decided, e)
		mu.Unlock()
	})
	n.OnPostPublished(func(_ context.Context, p *types.WonderlandPost) {
		mu.Lock()
		published = append(published, p)
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		_, err = n.SubmitTip(ctx, types.Tip{Content: "review me"})
		require.NoError(t, err)
		waitIdle(t, n)
	}

	queue := n.ApprovalQueue("owner-7")
	require.Len(t, queue, 2)
	require.Empty(t, n.ApprovalQueue("someone-else"))
	require.Empty(t, n.Feed(FeedOptions{}))

	post, err := n.ApprovePost(ctx, "careful", queue[0].QueueID)
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, types.LevelNewcomer, post.AgentLevelAtPost)
	require.Len(t, n.Feed(FeedOptions{}), 1)

	missing, err := n.ApprovePost(ctx, "careful", queue[0].QueueID)
	require.NoError(t, err)
	require.Nil(t, missing)
	none, err := n.ApprovePost(ctx, "ghost", "q")
	require.NoError(t, err)
	require.Nil(t, none)

	expired := n.ExpireApprovals(time.Now().Add(time.Hour))
	require.Len(t, expired, 1)
	require.Equal(t, types.ApprovalRejected, expired[0].Status)
	require.Nil(t, n.RejectPost("careful", queue[1].QueueID, "late"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, required, 2)
	require.Len(t, decided, 2)
	require.Len(t, published, 1)
	require.Equal(t, post.PostID, published[0].PostID)
}

func TestBrowsingSession(t *testing.T) {
	ctx := context.Background()
	n := New(Config{Rand: func() float64 { return 0 }})
	t.Cleanup(n.Close)

	_, err := n.RegisterCitizen(ctx, citizenConfig("reader", "o", 0.75, "debate"))
	require.NoError(t, err)
	_, err = n.RegisterCitizen(ctx, citizenConfig("writer", "o", 0.75, "debate"))
	require.NoError(t, err)
	require.Nil(t, n.RunBrowsingSession(ctx, "reader"), "no browsing before the enclave system")

	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.Start()
	_, err = n.SubmitTip(ctx, types.Tip{Content: "a debate worth having", Targets: []string{"writer"}})
	require.NoError(t, err)
	waitIdle(t, n)

	rec := n.RunBrowsingSession(ctx, "reader")
	require.NotNil(t, rec)
	require.Equal(t, []string{"arena"}, rec.EnclavesVisited)
	require.Equal(t, 1, rec.PostsRead)
	require.NotEmpty(t, rec.SessionID)
	require.Equal(t, 1, n.Citizen("reader").XP)
	require.Equal(t, rec.SessionID, n.LastBrowsingSession(ctx, "reader").SessionID)
	require.Equal(t, 1, n.Stats().EnclaveSystem.BrowsingSessions)

	last := n.LastBrowsingSession(ctx, "reader")
	require.NotEmpty(t, last.Actions)
	last.EnclavesVisited[0] = "elsewhere"
	last.Actions[0].Enclave = "elsewhere"
	rec.EnclavesVisited[0] = "elsewhere"
	again := n.LastBrowsingSession(ctx, "reader")
	require.Equal(t, []string{"arena"}, again.EnclavesVisited, "callers get their own slices")
	require.Equal(t, "arena", again.Actions[0].Enclave)

	n.UnregisterCitizen("reader")
	require.Nil(t, n.RunBrowsingSession(ctx, "reader"))
}

func TestBrowseCronTickRunsSessions(t *testing.T) {
	ctx := context.Background()
	n := New(Config{Rand: func() float64 { return 0 }})
	t.Cleanup(n.Close)
	_, err := n.RegisterCitizen(ctx, citizenConfig("reader", "o", 0.75, "debate"))
	require.NoError(t, err)
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.Start()

	_, err = n.Router().EmitCronTick(ctx, "daily")
	require.NoError(t, err)
	waitIdle(t, n)
	require.Nil(t, n.LastBrowsingSession(ctx, "reader"))

	_, err = n.Router().EmitCronTick(ctx, BrowseSchedule)
	require.NoError(t, err)
	waitIdle(t, n)
	require.NotNil(t, n.LastBrowsingSession(ctx, "reader"))
}

func TestTelemetrySnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	_, err := n.RegisterCitizen(ctx, citizenConfig("solo", "o", 0.75))
	require.NoError(t, err)
	require.NoError(t, n.InitializeEnclaveSystem(ctx))
	n.applyMoodDelta("solo", types.MoodDelta{Valence: 0.1, Trigger: "test"}, SourceSystem)

	first := n.AgentBehaviorTelemetry("solo")
	require.NotNil(t, first.Mood.CurrentState)
	first.Mood.CurrentState.Valence = 42
	first.Engagement.Received.Likes = 99

	second := n.AgentBehaviorTelemetry("solo")
	require.NotEqual(t, 42.0, second.Mood.CurrentState.Valence)
	require.Zero(t, second.Engagement.Received.Likes)
	require.Empty(t, cmp.Diff(second, n.ListBehaviorTelemetry()[0]))
	require.Nil(t, n.AgentBehaviorTelemetry("nobody"))
}

func TestStoppedNetworkIgnoresStimuli(t *testing.T) {
	ctx := context.Background()
	n := newNetwork(t)
	_, err := n.RegisterCitizen(ctx, citizenConfig("idle", "o", 0.75))
	require.NoError(t, err)

	_, err = n.SubmitTip(ctx, types.Tip{Content: "ignored"})
	require.NoError(t, err)
	waitIdle(t, n)
	require.Empty(t, n.Feed(FeedOptions{}))
	require.False(t, n.Stats().Running)
}

type memPostStore struct {
	mu    sync.Mutex
	posts []*types.WonderlandPost
}

func (s *memPostStore) SavePost(_ context.Context, p *types.WonderlandPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p.Clone())
	return nil
}

func (s *memPostStore) GetPost(_ context.Context, id string) (*types.WonderlandPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.PostID == id {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memPostStore) ListPosts(_ context.Context, seedID string, limit int) ([]*types.WonderlandPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.WonderlandPost
	for _, p := range s.posts {
		if seedID == "" || p.SeedID == seedID {
			out = append(out, p.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestRestorePosts(t *testing.T) {
	ctx := context.Background()
	store := &memPostStore{}
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, store.SavePost(ctx, &types.WonderlandPost{
			PostID: id, SeedID: "ada", Content: id, Status: types.PostPublished,
			CreatedAt: published, PublishedAt: &published,
		}))
	}

	n := newNetwork(t)
	restored, err := n.RestorePosts(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, restored, "no store configured")

	n.SetPostStore(store)
	restored, err = n.RestorePosts(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, restored)
	require.Len(t, n.Feed(FeedOptions{SeedID: "ada"}), 2)

	restored, err = n.RestorePosts(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, restored, "already loaded posts are kept")
	require.Equal(t, 2, n.Stats().TotalPosts)
}
