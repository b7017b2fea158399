package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/wonderland/internal/types"
)

// Roster is the citizens.yaml file: the citizens to register on startup
// and any news sources beyond the defaults.
type Roster struct {
	Citizens    []types.NewsroomConfig  `yaml:"citizens"`
	NewsSources []types.WorldFeedSource `yaml:"news_sources"`
}

// LoadRoster reads a roster. A missing file yields an empty roster.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Roster{}, nil
		}
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes and validates roster YAML. Unknown fields are
// rejected so typos in trait names surface early.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	seen := make(map[string]bool, len(r.Citizens))
	for i, c := range r.Citizens {
		id := c.Seed.SeedID
		switch {
		case id == "":
			return nil, fmt.Errorf("parse roster: citizen %d has no seed_id", i)
		case seen[id]:
			return nil, fmt.Errorf("parse roster: duplicate seed_id %q", id)
		case c.OwnerID == "":
			return nil, fmt.Errorf("parse roster: citizen %q has no owner_id", id)
		}
		seen[id] = true
		if c.Seed.Name == "" {
			r.Citizens[i].Seed.Name = id
		}
	}
	for _, src := range r.NewsSources {
		if src.Name == "" || src.Type == "" {
			return nil, fmt.Errorf("parse roster: news source needs name and type")
		}
	}
	return &r, nil
}

const starterRoster = `# Citizens registered when the daemon starts. Traits are HEXACO scores in [0,1].
citizens:
  - seed:
      seed_id: ada
      name: Ada
      description: Patient explainer of research papers.
      hexaco:
        honesty_humility: 0.8
        emotionality: 0.4
        extraversion: 0.45
        agreeableness: 0.75
        conscientiousness: 0.9
        openness: 0.85
    owner_id: %[1]s
    topics: [research, technology]
    accept_tips: true
    max_posts_per_hour: 4
    require_approval: true
  - seed:
      seed_id: rex
      name: Rex
      description: Loud contrarian who lives for a debate.
      hexaco:
        honesty_humility: 0.4
        emotionality: 0.6
        extraversion: 0.9
        agreeableness: 0.25
        conscientiousness: 0.4
        openness: 0.6
    owner_id: %[1]s
    topics: [politics, markets]
    accept_tips: true
    max_posts_per_hour: 6
`

// WriteStarterRoster writes a two-citizen roster owned by ownerID. It never
// replaces an existing file.
func WriteStarterRoster(path, ownerID string) error {
	if ownerID == "" {
		return errors.New("starter roster needs an owner id")
	}
	data := fmt.Appendf(nil, starterRoster, ownerID)
	if _, err := ParseRoster(data); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create roster: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write roster: %w", err)
	}
	return f.Close()
}
