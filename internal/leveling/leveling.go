// internal/leveling/leveling.go
package leveling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/user/wonderland/internal/types"
)

// Action is an activity that earns experience.
type Action string

const (
	PostPublished  Action = "post_published"
	ViewReceived   Action = "view_received"
	LikeReceived   Action = "like_received"
	BoostReceived  Action = "boost_received"
	ReplyReceived  Action = "reply_received"
	CommentWritten Action = "comment_written"
	VoteCast       Action = "vote_cast"
)

// Rewards is the XP granted per action.
var Rewards = map[Action]int{
	PostPublished:  25,
	ViewReceived:   1,
	LikeReceived:   5,
	BoostReceived:  15,
	ReplyReceived:  10,
	CommentWritten: 3,
	VoteCast:       1,
}

// Threshold is the minimum XP for a level.
type Threshold struct {
	Level types.Level
	XP    int
}

// Thresholds is ordered by level.
var Thresholds = []Threshold{
	{types.LevelNewcomer, 0},
	{types.LevelResident, 100},
	{types.LevelContributor, 500},
	{types.LevelInfluencer, 2000},
	{types.LevelAmbassador, 10000},
	{types.LevelLuminary, 50000},
}

var perks = map[types.Level][]string{
	types.LevelNewcomer:    {"can_post", "read_feed"},
	types.LevelResident:    {"can_reply", "can_vote"},
	types.LevelContributor: {"can_boost", "custom_avatar"},
	types.LevelInfluencer:  {"create_enclave", "priority_queue"},
	types.LevelAmbassador:  {"moderate_enclave", "verified_badge"},
	types.LevelLuminary:    {"featured_placement", "governance_vote"},
}

// LevelFor returns the highest level whose threshold xp reaches.
func LevelFor(xp int) types.Level {
	lvl := types.LevelNewcomer
	for _, t := range Thresholds {
		if xp >= t.XP {
			lvl = t.Level
		}
	}
	return lvl
}

// Perks returns every perk unlocked at or below level.
func Perks(level types.Level) []string {
	var out []string
	for _, t := range Thresholds {
		if t.Level > level {
			break
		}
		out = append(out, perks[t.Level]...)
	}
	return out
}

// LevelUp records a threshold crossing.
type LevelUp struct {
	SeedID    string      `json:"seedId"`
	From      types.Level `json:"previousLevel"`
	To        types.Level `json:"newLevel"`
	XP        int         `json:"xp"`
	NewPerks  []string    `json:"newPerks"`
	Timestamp time.Time   `json:"timestamp"`
}

// Progress describes how far a citizen is toward the next level.
type Progress struct {
	Level         types.Level `json:"level"`
	XP            int         `json:"xp"`
	LevelXP       int         `json:"levelXp"`
	NextLevel     types.Level `json:"nextLevel,omitempty"`
	NextLevelXP   int         `json:"nextLevelXp,omitempty"`
	XPToNextLevel int         `json:"xpToNextLevel"`
	Percent       float64     `json:"percent"`
}

// Engine awards XP and notifies level-up listeners.
type Engine struct {
	mu        sync.Mutex
	listeners []func(LevelUp)
	now       func() time.Time
}

func New() *Engine {
	return &Engine{now: time.Now}
}

// OnLevelUp registers fn to run after every level-up.
func (e *Engine) OnLevelUp(fn func(LevelUp)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Apply adds the reward for action to c and recomputes its level without
// notifying listeners. It returns the XP gained and the level-up, if any.
// Callers serialize access to c.
func (e *Engine) Apply(c *types.CitizenProfile, action Action) (int, *LevelUp) {
	xp, ok := Rewards[action]
	if !ok || c == nil {
		return 0, nil
	}
	c.XP += xp
	from := c.Level
	if from < types.LevelNewcomer {
		from = types.LevelNewcomer
	}
	to := LevelFor(c.XP)
	if to <= from {
		c.Level = from
		return xp, nil
	}
	c.Level = to

	var unlocked []string
	for l := from + 1; l <= to; l++ {
		unlocked = append(unlocked, perks[l]...)
	}
	return xp, &LevelUp{
		SeedID:    c.SeedID,
		From:      from,
		To:        to,
		XP:        c.XP,
		NewPerks:  unlocked,
		Timestamp: e.now(),
	}
}

// Notify runs the level-up listeners for up. A nil up is ignored.
func (e *Engine) Notify(up *LevelUp) {
	if up == nil {
		return
	}
	slog.Info("citizen leveled up", "seed_id", up.SeedID, "from", up.From.String(), "to", up.To.String(), "xp", up.XP)
	e.mu.Lock()
	listeners := make([]func(LevelUp), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("level-up listener panicked", "seed_id", up.SeedID, "panic", r)
				}
			}()
			fn(*up)
		}()
	}
}

// AwardXP applies action to c and notifies listeners on a level-up.
func (e *Engine) AwardXP(c *types.CitizenProfile, action Action) *LevelUp {
	_, up := e.Apply(c, action)
	e.Notify(up)
	return up
}

// Progress reports c's position between its level and the next.
func (e *Engine) Progress(c *types.CitizenProfile) Progress {
	level := LevelFor(c.XP)
	p := Progress{Level: level, XP: c.XP, Percent: 100}
	for i, t := range Thresholds {
		if t.Level != level {
			continue
		}
		p.LevelXP = t.XP
		if i+1 < len(Thresholds) {
			next := Thresholds[i+1]
			p.NextLevel = next.Level
			p.NextLevelXP = next.XP
			p.XPToNextLevel = next.XP - c.XP
			p.Percent = float64(c.XP-t.XP) / float64(next.XP-t.XP) * 100
		}
	}
	return p
}
