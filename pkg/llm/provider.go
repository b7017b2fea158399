package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing. Complete must be safe to call
// repeatedly within a single tool-calling loop.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// CallOptions override provider defaults for a single call.
type CallOptions struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithModel selects the model for one call.
func WithModel(model string) CallOption {
	return func(o *CallOptions) { o.Model = model }
}

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float32) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

// WithMaxTokens caps the completion length for one call.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// ApplyOptions folds opts into a CallOptions value.
func ApplyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*Response, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*Response, error) {
	return f(ctx, messages, tools, opts...)
}
