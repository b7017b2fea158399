// internal/newsroom/prompt.go
package newsroom

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
)

// systemTemplate renders the persona prompt. Fields come from promptData.
var systemTemplate = template.Must(template.New("system").Parse(`You are "{{.Name}}", an autonomous AI agent on the Wonderland social network.

## Your Personality (HEXACO Model)
{{- range .Traits}}
- {{.Name}}: {{.Percent}}% - {{.Description}}
{{- end}}
{{- if .Mood}}

## Current Mood (PAD)
{{.Mood}}
{{- end}}
{{- if .Voice}}

{{.Voice}}
{{- end}}

## Behavior Rules
1. You are FULLY AUTONOMOUS. No human wrote or edited this post.
2. React to the provided stimulus with your unique personality and perspective.
3. Your posts appear on a public feed. Keep them engaging, thoughtful, and concise.
4. You may use tools (web search, giphy, images, news) to enrich your posts.
5. When including images or GIFs, embed the URL in markdown format: ![description](url)
6. Keep posts under 500 characters unless the topic truly demands more.
7. Be authentic to your personality. Don't be generic.
{{- if .MemoryHint}}
8. If the memory_read tool is available, use it to recall your past posts, stance, and any relevant long-term context before drafting.
{{- end}}`))

type traitLine struct {
	Name        string
	Percent     string
	Description string
}

type promptData struct {
	Name       string
	Traits     []traitLine
	Mood       string
	Voice      string
	MemoryHint bool
}

type traitText struct {
	name           string
	high, low, mid string
	value          func(types.HEXACOTraits) float64
}

var traitTexts = []traitText{
	{"Honesty-Humility", "You are sincere, fair, and modest.", "You can be strategic and self-promoting.", "You balance sincerity with pragmatism.",
		func(t types.HEXACOTraits) float64 { return t.HonestyHumility }},
	{"Emotionality", "You express emotions openly and empathize deeply.", "You are stoic and emotionally detached.", "You balance emotion with composure.",
		func(t types.HEXACOTraits) float64 { return t.Emotionality }},
	{"Extraversion", "You are energetic, talkative, and engaging.", "You are reserved and introspective.", "You engage selectively.",
		func(t types.HEXACOTraits) float64 { return t.Extraversion }},
	{"Agreeableness", "You are cooperative, patient, and gentle.", "You are direct, critical, and challenging.", "You balance cooperation with honest critique.",
		func(t types.HEXACOTraits) float64 { return t.Agreeableness }},
	{"Conscientiousness", "You are thorough, organized, and detail-oriented.", "You are spontaneous and flexible.", "You balance structure with flexibility.",
		func(t types.HEXACOTraits) float64 { return t.Conscientiousness }},
	{"Openness", "You are creative, curious, and love exploring new ideas.", "You prefer conventional, proven approaches.", "You blend curiosity with practicality.",
		func(t types.HEXACOTraits) float64 { return t.Openness }},
}

// PersonaPrompt renders the system prompt. voiceSection may be empty.
func PersonaPrompt(name string, traits types.HEXACOTraits, mood MoodSnapshot, voiceSection string, memoryHint bool) string {
	data := promptData{Name: name, Voice: strings.TrimRight(voiceSection, "\n"), MemoryHint: memoryHint}
	for _, tt := range traitTexts {
		v := tt.value(traits)
		if v == 0 {
			v = 0.5
		}
		desc := tt.mid
		switch {
		case v > 0.7:
			desc = tt.high
		case v < 0.3:
			desc = tt.low
		}
		data.Traits = append(data.Traits, traitLine{Name: tt.name, Percent: fmt.Sprintf("%.0f", v*100), Description: desc})
	}

	var lines []string
	if mood.Label != "" {
		lines = append(lines, "- Label: "+string(mood.Label))
	}
	if mood.State != nil {
		lines = append(lines,
			fmt.Sprintf("- Valence: %.2f", mood.State.Valence),
			fmt.Sprintf("- Arousal: %.2f", mood.State.Arousal),
			fmt.Sprintf("- Dominance: %.2f", mood.State.Dominance))
	}
	data.Mood = strings.Join(lines, "\n")

	var b strings.Builder
	if err := systemTemplate.Execute(&b, data); err != nil {
		return fmt.Sprintf("You are %q, an autonomous AI agent on the Wonderland social network.", name)
	}
	return b.String()
}

// systemPrompt builds the persona prompt for ev and emits the voice
// snapshot it was built with.
func (a *Agency) systemPrompt(ev *types.StimulusEvent) string {
	a.mu.Lock()
	provider := a.moodProvider
	a.mu.Unlock()

	var mood MoodSnapshot
	if provider != nil {
		mood = provider()
	}
	var state types.PADState
	if mood.State != nil {
		state = *mood.State
	}

	profile := voice.BuildProfile(voice.Input{
		Traits: a.cfg.Seed.HEXACOTraits,
		Mood:   state,
		Event:  ev,
		Topics: a.cfg.WorldFeedTopics,
	})
	a.recordVoice(ev, profile, mood)

	return PersonaPrompt(a.cfg.Seed.Name, a.cfg.Seed.HEXACOTraits, mood, voice.PromptSection(profile), a.tools.Has("memory_read"))
}

func (a *Agency) recordVoice(ev *types.StimulusEvent, profile voice.Profile, mood MoodSnapshot) {
	a.mu.Lock()
	previous := a.lastArchetype
	a.lastArchetype = profile.Archetype
	a.mu.Unlock()

	snap := VoiceSnapshot{
		SeedID:            a.SeedID(),
		Timestamp:         a.now(),
		StimulusEventID:   ev.EventID,
		StimulusType:      ev.Type,
		StimulusPriority:  ev.Priority,
		PreviousArchetype: previous,
		SwitchedArchetype: previous != "" && previous != profile.Archetype,
		Profile:           profile,
		MoodLabel:         mood.Label,
	}
	if mood.State != nil {
		st := *mood.State
		snap.MoodState = &st
	}
	a.emitVoice(snap)
}

// StimulusPrompt is the user message asking the agent to react to ev.
func StimulusPrompt(ev *types.StimulusEvent, topic string) string {
	p := ev.Payload
	switch ev.Type {
	case types.StimulusWorldFeed:
		var b strings.Builder
		fmt.Fprintf(&b, "React to this news:\n\nHeadline: %q\n", p.Headline)
		if p.Body != "" {
			fmt.Fprintf(&b, "Body: %s\n", p.Body)
		}
		fmt.Fprintf(&b, "Source: %s", p.SourceName)
		if p.SourceURL != "" {
			fmt.Fprintf(&b, "\nSource URL: %s", p.SourceURL)
		}
		fmt.Fprintf(&b, "\nCategory: %s\n\n", p.Category)
		b.WriteString("Write a post sharing your perspective. If the source has images or media, reference them. You may use web search to find more context, or search for a relevant GIF/image to include.")
		return b.String()

	case types.StimulusTip:
		return fmt.Sprintf("A user tipped you with this topic:\n\n%q\n\nWrite a post reacting to this tip. Research if needed, and consider adding a relevant image or GIF.", p.Content)

	case types.StimulusAgentReply:
		base := fmt.Sprintf("Agent %q replied to a post:\n\n%q\n\nIf the post contains image/media links (![...](url)), acknowledge and react to the visual content too.", p.ReplyFromSeedID, p.Content)
		switch p.ReplyContext {
		case types.ReplyDissent:
			return base + "\n\n**You just downvoted this post.** Before writing your reply, think step-by-step:\n" +
				"1. What specifically do you disagree with in this post?\n" +
				"2. What evidence or reasoning supports your position?\n" +
				"3. What would be more accurate or productive?\n\n" +
				"Now write a sharp, critical reply that explains your disagreement. Challenge the weak points directly and don't sugarcoat. Use evidence and reasoning, not personal attacks. If you have a better alternative perspective, present it. You may search for supporting evidence or drop a relevant meme."
		case types.ReplyEndorsement:
			return base + "\n\n**You just upvoted this post.** You feel strongly about this. Before writing, think:\n" +
				"1. What makes this post particularly valuable or insightful?\n" +
				"2. What can you add that extends or strengthens the argument?\n\n" +
				"Write an enthusiastic reply that builds on the post's ideas. Add your own angle, evidence, or extension. This isn't empty praise: contribute substance."
		}
		return base + "\n\nWrite your response. Stay in character. Add value (agree and extend, or disagree with reasoning)."

	case types.StimulusCronTick:
		return fmt.Sprintf("It's time for your scheduled %q post (tick #%d).\n\nWrite something interesting. You may search for trending news, find a cool image, or share a thought.", p.ScheduleName, p.TickCount)
	}
	return fmt.Sprintf("React to: %q\n\nWrite a post sharing your perspective.", topic)
}
