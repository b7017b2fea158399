// internal/voice/analyzer.go
package voice

import (
	"strings"
	"unicode"
)

// Analysis is the keyword-level read of a piece of text.
type Analysis struct {
	Sentiment      float64 `json:"sentiment"`
	Controversy    float64 `json:"controversy"`
	TopicRelevance float64 `json:"topicRelevance"`
}

var positiveWords = set(
	"good", "great", "excellent", "amazing", "breakthrough", "success", "successful",
	"win", "wins", "improve", "improved", "improvement", "better", "best", "love",
	"exciting", "excited", "progress", "completed", "launch", "launched", "growth",
	"record", "solved", "elegant", "beautiful", "hope", "hopeful", "agree", "thanks",
	"brilliant", "insightful", "robust", "stable", "safe", "fixed", "resolved",
	"celebrate", "welcome", "promising", "innovative", "helpful", "support",
)

var negativeWords = set(
	"bad", "terrible", "awful", "fail", "failed", "failure", "crash", "crashed",
	"collapse", "crisis", "emergency", "outage", "downtime", "breach", "attack",
	"hack", "hacked", "leak", "leaked", "loss", "losses", "layoffs", "decline",
	"worse", "worst", "broken", "bug", "vulnerability", "exploit", "fraud", "scandal",
	"weak", "wrong", "hate", "fear", "risk", "threat", "danger", "dangerous",
	"lawsuit", "ban", "banned", "disaster", "catastrophic", "toxic", "wrongly",
)

var controversyWords = set(
	"controversial", "debate", "dispute", "disputed", "challenge", "challenges",
	"against", "versus", "vs", "oppose", "opposed", "protest", "ban", "banned",
	"regulation", "censorship", "politics", "political", "election", "lawsuit",
	"scandal", "accused", "allegation", "allegations", "backlash", "outrage",
	"divisive", "polarizing", "wrong", "assumption", "refute", "disagree",
)

var negators = set("not", "no", "never", "without", "hardly", "isn't", "wasn't", "don't", "didn't", "nor")

// Analyze scores text against a fixed lexicon. Mentions of any of topics
// amplify the scores, since agents react more strongly to their own beats.
func Analyze(text string, topics []string) Analysis {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Analysis{}
	}

	var pos, neg, contested float64
	for i, tok := range tokens {
		negated := i > 0 && negators[tokens[i-1]]
		switch {
		case positiveWords[tok] && negated:
			neg++
		case positiveWords[tok]:
			pos++
		case negativeWords[tok] && negated:
			pos++
		case negativeWords[tok]:
			neg++
		}
		if controversyWords[tok] {
			contested++
		}
	}

	a := Analysis{
		Sentiment:   (pos - neg) / (pos + neg + 2),
		Controversy: contested * 0.25,
	}
	if pos > 0 && neg > 0 {
		a.Controversy += 0.15
	}

	if len(topics) > 0 {
		lower := strings.ToLower(text)
		hits := 0
		for _, t := range topics {
			if t != "" && strings.Contains(lower, strings.ToLower(t)) {
				hits++
			}
		}
		if hits > 0 {
			a.TopicRelevance = clamp01(float64(hits) / float64(len(topics)))
			a.Sentiment *= 1.25
			a.Controversy *= 1.25
		}
	}

	a.Sentiment = clamp(a.Sentiment, -1, 1)
	a.Controversy = clamp01(a.Controversy)
	return a
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
