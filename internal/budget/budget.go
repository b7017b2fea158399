// internal/budget/budget.go
package budget

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TruncationMarker is appended to text cut down to a budget.
const TruncationMarker = "\n[truncated]"

// Counter measures and trims text in model tokens. A nil Counter, or one
// built by Approximate, estimates four bytes per token.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New selects the tokenizer for model, falling back to cl100k_base for
// unknown models.
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Approximate returns a Counter that never loads a tokenizer.
func Approximate() *Counter {
	return &Counter{}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c == nil || c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens, appending
// TruncationMarker when anything was removed. maxTokens <= 0 disables the
// limit.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || c.Count(text) <= maxTokens {
		return text
	}
	if c == nil || c.enc == nil {
		cut := maxTokens * 4
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + TruncationMarker
	}
	tokens := c.enc.Encode(text, nil, nil)
	return c.enc.Decode(tokens[:maxTokens]) + TruncationMarker
}
