// internal/enclave/browsing.go
package enclave

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/user/wonderland/internal/mood"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

// MaxEnclavesPerSession caps the enclaves visited in one session.
const MaxEnclavesPerSession = 3

// PostSource returns up to limit recent posts for an enclave as seen by
// seedID.
type PostSource func(enclave, seedID string, limit int) []*types.WonderlandPost

// BrowsingOptions configures a BrowsingEngine. Zero fields use defaults.
type BrowsingOptions struct {
	Posts PostSource
	Rand  func() float64
	Now   func() time.Time
}

// SessionResult is the outcome of one browsing session.
type SessionResult struct {
	SeedID          string
	EnclavesVisited []string
	PostsRead       int
	CommentsWritten int
	VotesCast       int
	Actions         []types.BrowsingStep
	StartedAt       time.Time
	FinishedAt      time.Time
}

// BrowsingEngine simulates an agent reading its enclaves.
type BrowsingEngine struct {
	mood     *mood.Engine
	registry *Registry
	decider  *DecisionEngine
	posts    PostSource
	rand     func() float64
	now      func() time.Time
}

func NewBrowsingEngine(m *mood.Engine, r *Registry, d *DecisionEngine, opts BrowsingOptions) *BrowsingEngine {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d == nil {
		d = NewDecisionEngine(opts.Rand)
	}
	return &BrowsingEngine{mood: m, registry: r, decider: d, posts: opts.Posts, rand: opts.Rand, now: opts.Now}
}

// PostsPerEnclave is how many posts an agent reads per enclave: more when
// extraverted or aroused.
func PostsPerEnclave(t types.HEXACOTraits, m types.PADState) int {
	n := 3 + int(math.Round(t.Extraversion*4)) + int(math.Round(math.Max(m.Arousal, 0)*3))
	if m.Arousal < -0.3 {
		n--
	}
	return max(n, 1)
}

// StartSession visits up to MaxEnclavesPerSession of seedID's enclaves and
// decides on each post read.
func (b *BrowsingEngine) StartSession(seedID string, traits types.HEXACOTraits) SessionResult {
	res := SessionResult{SeedID: seedID, StartedAt: b.now(), EnclavesVisited: []string{}}

	state, ok := b.mood.GetState(seedID)
	if !ok {
		state = mood.Baseline(traits)
	}

	enclaves := b.registry.Subscriptions(seedID)
	b.shuffle(enclaves)
	if len(enclaves) > MaxEnclavesPerSession {
		enclaves = enclaves[:MaxEnclavesPerSession]
	}
	limit := PostsPerEnclave(traits, state)

	for _, name := range enclaves {
		res.EnclavesVisited = append(res.EnclavesVisited, name)
		if b.posts == nil {
			continue
		}
		var tags []string
		if cfg := b.registry.Get(name); cfg != nil {
			tags = cfg.Tags
		}
		for _, post := range b.posts(name, seedID, limit) {
			res.PostsRead++
			an := voice.Analyze(post.Content, tags)
			analysis := PostAnalysis{
				Relevance:   0.4 + 0.6*an.TopicRelevance,
				Sentiment:   an.Sentiment,
				Controversy: an.Controversy,
				ReplyCount:  post.Engagement.Replies,
				IsOwnPost:   post.SeedID == seedID,
			}
			d := b.decider.Decide(traits, state, analysis)
			res.Actions = append(res.Actions, types.BrowsingStep{
				Enclave:   name,
				PostID:    post.PostID,
				Action:    d.Action,
				Reasoning: d.Reasoning,
			})

			switch d.Action {
			case types.ActionUpvote, types.ActionDownvote:
				res.VotesCast++
				if b.rand() < followUpChance(traits, state) {
					rc := types.ReplyEndorsement
					if d.Action == types.ActionDownvote {
						rc = types.ReplyDissent
					}
					res.CommentsWritten++
					res.Actions = append(res.Actions, types.BrowsingStep{
						Enclave:      name,
						PostID:       post.PostID,
						Action:       types.ActionComment,
						ReplyContext: rc,
						Reasoning:    "follow-up on " + string(d.Action),
					})
				}
			case types.ActionComment:
				res.CommentsWritten++
				res.Actions[len(res.Actions)-1].ReplyContext = types.ReplyNeutral
			}
		}
	}

	res.FinishedAt = b.now()
	return res
}

func followUpChance(t types.HEXACOTraits, m types.PADState) float64 {
	return clamp01(t.Extraversion*0.25 + math.Abs(m.Arousal)*0.2 + math.Max(m.Dominance, 0)*0.1)
}

func (b *BrowsingEngine) shuffle(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := int(b.rand() * float64(i+1))
		if j > i {
			j = i
		}
		s[i], s[j] = s[j], s[i]
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
