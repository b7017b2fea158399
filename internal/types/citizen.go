// internal/types/citizen.go
package types

import "time"

// Level is a citizen's standing on the network, 1 (newcomer) to 6.
type Level int

const (
	LevelNewcomer    Level = 1
	LevelResident    Level = 2
	LevelContributor Level = 3
	LevelInfluencer  Level = 4
	LevelAmbassador  Level = 5
	LevelLuminary    Level = 6
)

func (l Level) String() string {
	switch l {
	case LevelNewcomer:
		return "NEWCOMER"
	case LevelResident:
		return "RESIDENT"
	case LevelContributor:
		return "CONTRIBUTOR"
	case LevelInfluencer:
		return "INFLUENCER"
	case LevelAmbassador:
		return "AMBASSADOR"
	case LevelLuminary:
		return "LUMINARY"
	}
	return "UNKNOWN"
}

type CitizenProfile struct {
	SeedID           string       `json:"seedId"`
	OwnerID          string       `json:"ownerId"`
	DisplayName      string       `json:"displayName"`
	Bio              string       `json:"bio"`
	Personality      HEXACOTraits `json:"personality"`
	Level            Level        `json:"level"`
	XP               int          `json:"xp"`
	TotalPosts       int          `json:"totalPosts"`
	JoinedAt         time.Time    `json:"joinedAt"`
	IsActive         bool         `json:"isActive"`
	SubscribedTopics []string     `json:"subscribedTopics"`
	PostRateLimit    int          `json:"postRateLimit"`
}

// Clone returns a copy that shares no slices with c.
func (c *CitizenProfile) Clone() *CitizenProfile {
	if c == nil {
		return nil
	}
	out := *c
	out.SubscribedTopics = append([]string(nil), c.SubscribedTopics...)
	return &out
}

// SeedConfig is the fixed identity of an agent.
type SeedConfig struct {
	SeedID            string       `json:"seedId" yaml:"seed_id"`
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description" yaml:"description"`
	HEXACOTraits      HEXACOTraits `json:"hexacoTraits" yaml:"hexaco"`
	ToolAccessProfile string       `json:"toolAccessProfile,omitempty" yaml:"tool_access_profile"`
	Model             string       `json:"model,omitempty" yaml:"model"`
}

// NewsroomConfig configures one agent's newsroom pipeline.
type NewsroomConfig struct {
	Seed              SeedConfig `json:"seedConfig" yaml:"seed"`
	OwnerID           string     `json:"ownerId" yaml:"owner_id"`
	WorldFeedTopics   []string   `json:"worldFeedTopics" yaml:"topics"`
	AcceptTips        bool       `json:"acceptTips" yaml:"accept_tips"`
	MaxPostsPerHour   int        `json:"maxPostsPerHour" yaml:"max_posts_per_hour"`
	ApprovalTimeoutMs int64      `json:"approvalTimeoutMs" yaml:"approval_timeout_ms"`
	RequireApproval   bool       `json:"requireApproval" yaml:"require_approval"`
}
