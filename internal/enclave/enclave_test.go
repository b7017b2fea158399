// internal/enclave/enclave_test.go
package enclave

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/user/wonderland/internal/mood"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

type memStore struct {
	enclaves    []*types.EnclaveConfig
	memberships map[string][]string
	deleted     []string
}

func (m *memStore) SaveEnclave(_ context.Context, cfg *types.EnclaveConfig) error {
	m.enclaves = append(m.enclaves, cfg)
	return nil
}

func (m *memStore) LoadEnclaves(context.Context) ([]*types.EnclaveConfig, error) {
	return m.enclaves, nil
}

func (m *memStore) SaveMembership(_ context.Context, seedID, name string) error {
	if m.memberships == nil {
		m.memberships = map[string][]string{}
	}
	m.memberships[seedID] = append(m.memberships[seedID], name)
	return nil
}

func (m *memStore) DeleteMembership(_ context.Context, seedID, name string) error {
	m.deleted = append(m.deleted, seedID+"/"+name)
	return nil
}

func (m *memStore) LoadMemberships(context.Context) (map[string][]string, error) {
	return m.memberships, nil
}

var traits = types.HEXACOTraits{
	HonestyHumility: 0.7, Emotionality: 0.5, Extraversion: 0.6,
	Agreeableness: 0.6, Conscientiousness: 0.7, Openness: 0.8,
}

func TestRegistryCreateAndDuplicate(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	if err := r.CreateEnclave(ctx, types.EnclaveConfig{Name: "arena", Tags: []string{"Debate"}}); err != nil {
		t.Fatal(err)
	}
	err := r.CreateEnclave(ctx, types.EnclaveConfig{Name: "arena"})
	if !errors.Is(err, ErrEnclaveExists) {
		t.Fatalf("expected ErrEnclaveExists, got %v", err)
	}
	if err := r.CreateEnclave(ctx, types.EnclaveConfig{Name: " "}); !errors.Is(err, ErrInvalidEnclave) {
		t.Fatalf("expected ErrInvalidEnclave, got %v", err)
	}

	got := r.Get("arena")
	if got == nil || got.DisplayName != "arena" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected enclave %+v", got)
	}
	got.Tags[0] = "mutated"
	if r.Get("arena").Tags[0] != "Debate" {
		t.Error("Get should return a copy")
	}
	if r.Get("missing") != nil {
		t.Error("missing enclave should be nil")
	}
}

func TestRegistryMembership(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "arena"})
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "governance"})

	if !r.Subscribe(ctx, "seed-1", "arena") || !r.Subscribe(ctx, "seed-1", "governance") || !r.Subscribe(ctx, "seed-2", "arena") {
		t.Fatal("subscribe failed")
	}
	if r.Subscribe(ctx, "seed-1", "arena") {
		t.Error("duplicate subscribe should report false")
	}
	if r.Subscribe(ctx, "seed-1", "nowhere") {
		t.Error("subscribe to unknown enclave should report false")
	}
	if got := r.Subscriptions("seed-1"); !reflect.DeepEqual(got, []string{"arena", "governance"}) {
		t.Errorf("subscriptions = %v", got)
	}
	if got := r.Members("arena"); !reflect.DeepEqual(got, []string{"seed-1", "seed-2"}) {
		t.Errorf("members = %v", got)
	}

	if !r.Unsubscribe(ctx, "seed-1", "arena") || r.Unsubscribe(ctx, "seed-1", "arena") {
		t.Error("unsubscribe should succeed once")
	}
	if r.IsMember("seed-1", "arena") || !r.IsMember("seed-2", "arena") {
		t.Error("membership not updated")
	}
}

func TestMatchByTags(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "proof-theory", Tags: []string{"logic", "Math"}})
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "arena", Tags: []string{"debate"}})
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "creative-chaos", Tags: []string{"art"}})

	var names []string
	for _, e := range r.MatchByTags([]string{"MATH", "Debate", "cooking"}) {
		names = append(names, e.Name)
	}
	if !reflect.DeepEqual(names, []string{"arena", "proof-theory"}) {
		t.Errorf("matched %v", names)
	}
	if len(r.MatchByTags(nil)) != 0 {
		t.Error("no tags should match nothing")
	}
}

func TestRegistryPersistence(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := NewRegistry()
	r.SetStore(store)
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "arena"})
	r.Subscribe(ctx, "seed-1", "arena")
	r.Unsubscribe(ctx, "seed-1", "arena")
	r.Subscribe(ctx, "seed-2", "arena")

	if len(store.enclaves) != 1 || len(store.deleted) != 1 {
		t.Fatalf("unexpected writes %+v", store)
	}

	store.memberships = map[string][]string{"seed-2": {"arena", "ghost"}}
	restored := NewRegistry()
	restored.SetStore(store)
	if err := restored.LoadFromPersistence(ctx); err != nil {
		t.Fatal(err)
	}
	if restored.Get("arena") == nil {
		t.Fatal("enclave not restored")
	}
	if got := restored.Subscriptions("seed-2"); !reflect.DeepEqual(got, []string{"arena"}) {
		t.Errorf("restored subscriptions = %v", got)
	}
}

func TestDecideOwnPostSkips(t *testing.T) {
	d := NewDecisionEngine(func() float64 { return 0.99 })
	got := d.Decide(traits, types.PADState{}, PostAnalysis{Relevance: 1, IsOwnPost: true})
	if got.Action != types.ActionSkip || got.Probability != 1 {
		t.Errorf("own post should be skipped, got %+v", got)
	}
}

func TestDecideFollowsRoll(t *testing.T) {
	analysis := PostAnalysis{Relevance: 0.7, Sentiment: 0.3, ReplyCount: 4}
	low := NewDecisionEngine(func() float64 { return 0 }).Decide(traits, types.PADState{}, analysis)
	if low.Action != types.ActionSkip {
		t.Errorf("lowest roll should skip, got %s", low.Action)
	}
	high := NewDecisionEngine(func() float64 { return 0.9999 }).Decide(traits, types.PADState{}, analysis)
	if high.Action != types.ActionComment {
		t.Errorf("highest roll should comment, got %s", high.Action)
	}

	w := Weights(traits, types.PADState{}, analysis)
	var total float64
	for _, v := range w {
		total += v
	}
	if math.Abs(high.Probability-w[types.ActionComment]/total) > 1e-9 || high.Reasoning == "" {
		t.Errorf("unexpected decision %+v", high)
	}
}

func TestWeightsRespondToMood(t *testing.T) {
	a := PostAnalysis{Relevance: 0.5, Sentiment: -0.4, Controversy: 0.5}
	calm := Weights(traits, types.PADState{Valence: 0.5}, a)
	upset := Weights(traits, types.PADState{Valence: -0.8, Arousal: 0.8, Dominance: 0.8}, a)
	if upset[types.ActionDownvote] <= calm[types.ActionDownvote] {
		t.Error("negative valence should raise downvote weight")
	}
	if upset[types.ActionComment] <= calm[types.ActionComment] {
		t.Error("arousal and dominance should raise comment weight")
	}
}

func TestPostsPerEnclave(t *testing.T) {
	if got := PostsPerEnclave(types.HEXACOTraits{Extraversion: 1}, types.PADState{Arousal: 1}); got != 10 {
		t.Errorf("got %d, want 10", got)
	}
	if got := PostsPerEnclave(types.HEXACOTraits{}, types.PADState{Arousal: -0.8}); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func newBrowsingFixture(t *testing.T, rnd func() float64, enclaves ...string) (*BrowsingEngine, *Registry, map[string]int) {
	t.Helper()
	ctx := context.Background()
	r := NewRegistry()
	for _, name := range enclaves {
		r.CreateEnclave(ctx, types.EnclaveConfig{Name: name, Tags: []string{"logic"}})
		r.Subscribe(ctx, "reader", name)
	}
	m := mood.NewEngine()
	m.InitializeAgent("reader", traits)

	requested := map[string]int{}
	source := func(enclave, seedID string, limit int) []*types.WonderlandPost {
		requested[enclave] = limit
		return []*types.WonderlandPost{
			{PostID: enclave + "-own", SeedID: seedID, Content: "my own logic post"},
			{PostID: enclave + "-other", SeedID: "author", Content: "great logic result", Engagement: types.Engagement{Replies: 2}},
		}
	}
	b := NewBrowsingEngine(m, r, nil, BrowsingOptions{Posts: source, Rand: rnd})
	return b, r, requested
}

func TestBrowsingSessionSkips(t *testing.T) {
	b, _, requested := newBrowsingFixture(t, func() float64 { return 0 }, "a", "b", "c", "d", "e")
	res := b.StartSession("reader", traits)

	if len(res.EnclavesVisited) != MaxEnclavesPerSession {
		t.Fatalf("visited %v", res.EnclavesVisited)
	}
	if len(requested) != MaxEnclavesPerSession {
		t.Errorf("requested %v", requested)
	}
	if res.PostsRead != 6 || res.VotesCast != 0 || res.CommentsWritten != 0 {
		t.Errorf("unexpected counts %+v", res)
	}
	for _, a := range res.Actions {
		if a.Action != types.ActionSkip {
			t.Errorf("unexpected action %+v", a)
		}
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Error("finish before start")
	}
}

func TestBrowsingSessionComments(t *testing.T) {
	b, _, _ := newBrowsingFixture(t, func() float64 { return 0.9999 }, "a")
	res := b.StartSession("reader", traits)

	if res.PostsRead != 2 || res.CommentsWritten != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	var comments []types.BrowsingStep
	for _, a := range res.Actions {
		if a.Action == types.ActionComment {
			comments = append(comments, a)
		}
	}
	if len(comments) != 1 || comments[0].PostID != "a-other" || comments[0].ReplyContext != types.ReplyNeutral {
		t.Errorf("unexpected comments %+v", comments)
	}
}

func TestBrowsingFollowUpAfterVote(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.CreateEnclave(ctx, types.EnclaveConfig{Name: "a"})
	r.Subscribe(ctx, "reader", "a")
	m := mood.NewEngine()
	base := m.InitializeAgent("reader", traits)

	content := "wonderful progress"
	an := voice.Analyze(content, nil)
	w := Weights(traits, base, PostAnalysis{Relevance: 0.4, Sentiment: an.Sentiment, Controversy: an.Controversy})
	var total float64
	for _, v := range w {
		total += v
	}
	// First roll lands mid-upvote, second passes the follow-up check.
	rolls := []float64{(w[types.ActionSkip] + w[types.ActionUpvote]/2) / total, 0}
	i := 0
	rnd := func() float64 {
		v := rolls[i%len(rolls)]
		i++
		return v
	}
	source := func(string, string, int) []*types.WonderlandPost {
		return []*types.WonderlandPost{{PostID: "p1", SeedID: "author", Content: content}}
	}
	b := NewBrowsingEngine(m, r, nil, BrowsingOptions{Posts: source, Rand: rnd})

	res := b.StartSession("reader", traits)
	if res.VotesCast != 1 || res.CommentsWritten != 1 || len(res.Actions) != 2 {
		t.Fatalf("unexpected session %+v", res)
	}
	if res.Actions[0].Action != types.ActionUpvote || res.Actions[1].ReplyContext != types.ReplyEndorsement {
		t.Errorf("expected upvote then endorsement, got %+v", res.Actions)
	}
}

func TestBrowsingWithoutSubscriptions(t *testing.T) {
	b, _, _ := newBrowsingFixture(t, nil)
	res := b.StartSession("reader", traits)
	if len(res.EnclavesVisited) != 0 || res.PostsRead != 0 {
		t.Errorf("unexpected session %+v", res)
	}
}
