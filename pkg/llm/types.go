package llm

import (
	"encoding/json"
	"strconv"
)

// Message represents a chat message in a conversation.
type Message struct {
	Role    string     `json:"role"`
	Content string     `json:"content"`
	Tools   []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a role "tool" message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Images are attached as image_url parts for vision-capable models.
	Images []string `json:"images,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments for a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsJSON returns the call arguments as a JSON object. OpenAI-style
// APIs encode arguments as a JSON string holding the object; both shapes are
// accepted.
func (f FunctionCall) ArgumentsJSON() json.RawMessage {
	if len(f.Arguments) > 0 && f.Arguments[0] == '"' {
		if s, err := strconv.Unquote(string(f.Arguments)); err == nil {
			return json.RawMessage(s)
		}
	}
	if len(f.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	return f.Arguments
}

// Tool describes a tool that can be provided to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function including its parameters schema.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Model     string     `json:"model,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
