package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/user/wonderland/pkg/llm"
)

// capture is a fake chat-completions endpoint that records the last request
// body and replies with reply.
type capture struct {
	t     *testing.T
	path  string
	auth  string
	body  map[string]any
	reply any
	code  int
}

func (c *capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.path = r.URL.Path
	c.auth = r.Header.Get("Authorization")
	if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
		c.t.Errorf("decode request: %v", err)
	}
	if c.code != 0 {
		w.WriteHeader(c.code)
	}
	json.NewEncoder(w).Encode(c.reply)
}

func serve(t *testing.T, reply any) (*capture, string) {
	t.Helper()
	c := &capture{t: t, reply: reply}
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	return c, srv.URL
}

func assistant(content string) map[string]any {
	return map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
	}
}

func TestCompleteDraftsPost(t *testing.T) {
	c, url := serve(t, assistant("Markets shrug at the rate cut."))
	client := New(&llm.Config{BaseURL: url + "/v1", APIKey: "sk-test", Model: "gpt-4o-mini", MaxTokens: 256, Temperature: 0.8})

	resp, err := client.Complete(context.Background(), []llm.Message{
		{Role: "system", Content: "You are ada, a terse market analyst."},
		{Role: "user", Content: "React to: Fed cuts rates"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.path != "/v1/chat/completions" || c.auth != "Bearer sk-test" {
		t.Errorf("unexpected request %s auth=%q", c.path, c.auth)
	}
	if c.body["model"] != "gpt-4o-mini" || c.body["max_tokens"] != float64(256) {
		t.Errorf("unexpected body %v", c.body)
	}
	if _, ok := c.body["tools"]; ok {
		t.Error("tools should be omitted when none are offered")
	}
	if resp.Content != "Markets shrug at the rate cut." || resp.Model != "gpt-4o-mini" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Usage != (llm.Usage{InputTokens: 120, OutputTokens: 40, TotalTokens: 160}) {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestCompleteReturnsToolCalls(t *testing.T) {
	c, url := serve(t, map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{
			"role": "assistant",
			"tool_calls": []any{map[string]any{
				"id":       "call_news",
				"type":     "function",
				"function": map[string]any{"name": "news_search", "arguments": `{"query":"rate cut"}`},
			}},
		}}},
	})
	client := New(&llm.Config{BaseURL: url, APIKey: "k", Model: "gpt-4o-mini"})

	tools := []llm.Tool{{Type: "function", Function: llm.Function{
		Name:       "news_search",
		Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`),
	}}}
	resp, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "research"}}, tools)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := c.body["tools"].([]any); len(got) != 1 {
		t.Errorf("expected one tool offered, got %v", c.body["tools"])
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "news_search" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	var args struct{ Query string }
	if err := json.Unmarshal(resp.ToolCalls[0].Function.ArgumentsJSON(), &args); err != nil || args.Query != "rate cut" {
		t.Errorf("unexpected arguments %s (%v)", resp.ToolCalls[0].Function.ArgumentsJSON(), err)
	}
}

func TestCompleteEncodesImagesAndToolTurns(t *testing.T) {
	c, url := serve(t, map[string]any{
		"model":   "gpt-4o-mini-2024",
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "done"}}},
	})
	client := New(&llm.Config{BaseURL: url, APIKey: "k", Model: "gpt-4"})

	resp, err := client.Complete(context.Background(), []llm.Message{
		{Role: "user", Content: "what is this chart", Images: []string{"https://example.com/chart.png"}},
		{Role: "assistant", Tools: []llm.ToolCall{{ID: "call_1", Function: llm.FunctionCall{Name: "web_search", Arguments: json.RawMessage(`{"query":"go"}`)}}}},
		{Role: "tool", Content: "results", ToolCallID: "call_1"},
	}, nil, llm.WithModel("gpt-4o-mini"), llm.WithTemperature(0.3))
	if err != nil {
		t.Fatal(err)
	}
	if c.body["model"] != "gpt-4o-mini" {
		t.Errorf("per-call model not applied: %v", c.body["model"])
	}
	if temp, _ := c.body["temperature"].(float64); temp < 0.29 || temp > 0.31 {
		t.Errorf("per-call temperature not applied: %v", c.body["temperature"])
	}

	msgs := c.body["messages"].([]any)
	parts, _ := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 || parts[1].(map[string]any)["type"] != "image_url" {
		t.Errorf("expected text and image parts, got %v", msgs[0])
	}
	turn := msgs[1].(map[string]any)
	if turn["content"] != nil {
		t.Errorf("tool-only assistant turn should have null content, got %v", turn["content"])
	}
	call := turn["tool_calls"].([]any)[0].(map[string]any)
	if call["type"] != "function" || call["function"].(map[string]any)["arguments"] != `{"query":"go"}` {
		t.Errorf("unexpected encoded call %v", call)
	}
	if msgs[2].(map[string]any)["tool_call_id"] != "call_1" {
		t.Errorf("tool result lost its call id: %v", msgs[2])
	}
	if resp.Model != "gpt-4o-mini-2024" {
		t.Errorf("expected model reported by the API, got %q", resp.Model)
	}
}

func TestCompleteErrors(t *testing.T) {
	c, url := serve(t, map[string]any{"error": map[string]any{"message": "Rate limit reached"}})
	c.code = http.StatusTooManyRequests
	client := New(&llm.Config{BaseURL: url, APIKey: "k", Model: "m"})

	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != 429 || se.Message != "Rate limit reached" || !se.Transient() {
		t.Errorf("expected transient status error, got %v", err)
	}

	c.code = 0
	c.reply = map[string]any{"choices": []any{}}
	if _, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Error("expected error for empty choices")
	}
}

var _ llm.Provider = (*Client)(nil)
