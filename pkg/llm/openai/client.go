package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/wonderland/pkg/llm"
)

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Tools       []llm.Tool       `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
}

// requestMessage is the OpenAI message format for requests. Content is either
// a string or a list of content parts when images are attached.
type requestMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content"`
	ToolCalls  []requestCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// requestCall re-encodes arguments as the JSON string the API expects.
type requestCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// chatResponse is the OpenAI chat completions response body.
type chatResponse struct {
	Model   string        `json:"model"`
	Choices []choice      `json:"choices"`
	Usage   responseUsage `json:"usage"`
}

// choice represents a single completion choice.
type choice struct {
	Message responseMessage `json:"message"`
}

// responseMessage is the OpenAI message format in responses.
type responseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
}

// responseUsage is the OpenAI token usage format.
type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toRequestMessage(msg llm.Message) requestMessage {
	rm := requestMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
	if msg.Role == "assistant" && msg.Content == "" && len(msg.Tools) > 0 {
		rm.Content = nil
	}
	if len(msg.Images) > 0 {
		parts := []contentPart{{Type: "text", Text: msg.Content}}
		for _, u := range msg.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u, Detail: "low"}})
		}
		rm.Content = parts
	}
	for _, tc := range msg.Tools {
		var rc requestCall
		rc.ID = tc.ID
		rc.Type = tc.Type
		if rc.Type == "" {
			rc.Type = "function"
		}
		rc.Function.Name = tc.Function.Name
		rc.Function.Arguments = string(tc.Function.ArgumentsJSON())
		rm.ToolCalls = append(rm.ToolCalls, rc)
	}
	return rm
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) (*llm.Response, error) {
	o := llm.ApplyOptions(opts)

	reqMessages := make([]requestMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = toRequestMessage(msg)
	}

	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: reqMessages,
	}
	if o.Model != "" {
		reqBody.Model = o.Model
	}

	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	switch {
	case o.MaxTokens > 0:
		reqBody.MaxTokens = o.MaxTokens
	case c.config.MaxTokens > 0:
		reqBody.MaxTokens = c.config.MaxTokens
	}

	if o.Temperature != nil {
		reqBody.Temperature = o.Temperature
	} else if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	model := chatResp.Model
	if model == "" {
		model = reqBody.Model
	}

	choice := chatResp.Choices[0]
	return &llm.Response{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Model:     model,
		Usage: llm.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		},
	}, nil
}

// statusError prefers the API's own error message over the raw body.
func statusError(code int, body []byte) *llm.StatusError {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	return &llm.StatusError{StatusCode: code, Message: msg}
}
