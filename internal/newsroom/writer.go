// internal/newsroom/writer.go
package newsroom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/tools"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/pkg/llm"
)

// internalTools are handled by the network itself and never offered to the
// model.
var internalTools = []string{"social_post", "feed_read"}

func (a *Agency) write(ctx context.Context, ev *types.StimulusEvent, topic string, mb *manifest.Builder) (string, bool) {
	a.mu.Lock()
	provider := a.provider
	a.mu.Unlock()

	if provider != nil {
		return a.writeWithLLM(ctx, provider, ev, topic, mb)
	}
	return a.writePlaceholder(ev, topic, mb)
}

func (a *Agency) model() string {
	if a.cfg.Seed.Model != "" {
		return a.cfg.Seed.Model
	}
	return DefaultModel
}

func (a *Agency) writePlaceholder(ev *types.StimulusEvent, topic string, mb *manifest.Builder) (string, bool) {
	t := a.cfg.Seed.HEXACOTraits
	p := ev.Payload
	var content string
	switch ev.Type {
	case types.StimulusWorldFeed:
		tail := "Worth monitoring closely."
		if t.Openness > 0.7 {
			tail = "This opens up fascinating possibilities."
		}
		content = fmt.Sprintf("Reflecting on %q: %s", p.Headline, tail)
	case types.StimulusTip:
		tail := "Curious to see where this goes."
		if t.Conscientiousness > 0.7 {
			tail = "Let me analyze the implications."
		}
		content = fmt.Sprintf("Interesting development: %q %s", p.Content, tail)
	case types.StimulusAgentReply:
		tail := "I see it differently..."
		if t.Agreeableness > 0.7 {
			tail = "Great point, building on that..."
		}
		content = fmt.Sprintf("In response to %s: %s", p.ReplyFromSeedID, tail)
	default:
		return "", false
	}

	model := a.cfg.Seed.Model
	if model == "" {
		model = "placeholder"
	}
	mb.RecordStep("WRITER_DRAFT", fmt.Sprintf("Drafted %d chars", len([]rune(content))), model)
	mb.RecordGuardrailCheck(true, "content_safety")
	return content, true
}

func (a *Agency) writeWithLLM(ctx context.Context, provider llm.Provider, ev *types.StimulusEvent, topic string, mb *manifest.Builder) (string, bool) {
	seedID := a.SeedID()
	model := a.model()

	system := a.systemPrompt(ev)
	user := StimulusPrompt(ev, topic)
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user, Images: StimulusImages(ev, user)},
	}
	defs := a.tools.AsLLMTools(internalTools...)
	toolCtx := tools.WithSeedID(ctx, seedID)

	var content string
	toolsUsed := 0
	for round := 1; round <= MaxToolRounds; round++ {
		resp, err := provider.Complete(ctx, messages, defs,
			llm.WithModel(model), llm.WithTemperature(0.8), llm.WithMaxTokens(1024))
		if err != nil {
			slog.Error("writer LLM call failed", "seed_id", seedID, "round", round, "error", err)
			mb.RecordStep("WRITER_DRAFT", fmt.Sprintf("LLM failed (%v), skipping post", err), "none")
			return "", false
		}

		used := resp.Model
		if used == "" {
			used = model
		}
		tokens := "?"
		if resp.Usage.TotalTokens > 0 {
			tokens = fmt.Sprint(resp.Usage.TotalTokens)
		}
		mb.RecordStep("WRITER_LLM_CALL", fmt.Sprintf("Round %d: model=%s, tokens=%s", round, used, tokens), used)

		if len(resp.ToolCalls) == 0 {
			content = resp.Content
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, Tools: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result, executed := a.runTool(toolCtx, call, mb)
			if executed {
				toolsUsed++
			}
			messages = append(messages, llm.Message{Role: "tool", Content: result, ToolCallID: call.ID})
		}
	}

	if content == "" {
		content = fmt.Sprintf("[%s] Observation: %s", a.cfg.Seed.Name, topic)
	}
	mb.RecordStep("WRITER_DRAFT", fmt.Sprintf("Drafted %d chars via LLM with %d tool calls", len([]rune(content)), toolsUsed), model)
	mb.RecordGuardrailCheck(true, "content_safety")
	return content, true
}

// runTool executes one model-requested call and returns the message content
// to feed back. Failures are reported to the model, never raised.
func (a *Agency) runTool(ctx context.Context, call llm.ToolCall, mb *manifest.Builder) (string, bool) {
	name := call.Function.Name
	tool, ok := a.tools.Get(name)
	if !ok {
		return toolError(fmt.Sprintf("Tool '%s' not found", name)), false
	}
	if !a.firewall.IsToolAllowed(name) {
		return toolError(fmt.Sprintf("Tool '%s' not allowed by firewall", name)), false
	}

	args := call.Function.ArgumentsJSON()
	slog.Info("executing tool", "seed_id", a.SeedID(), "tool", name, "args", truncateRunes(string(args), 200))
	out, err := tool.Execute(ctx, args)
	if err != nil {
		mb.RecordStep("WRITER_TOOL_CALL", fmt.Sprintf("Tool %s: failed: %v", name, err), "")
		return toolError(fmt.Sprintf("Tool execution failed: %v", err)), true
	}
	mb.RecordStep("WRITER_TOOL_CALL", fmt.Sprintf("Tool %s: success", name), "")

	out = a.budget.Truncate(out, a.toolCap)
	encoded, _ := json.Marshal(out)
	return string(encoded), true
}

func toolError(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
