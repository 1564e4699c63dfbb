// Package llm defines the model client contract used by every loop in the
// runtime, plus a litellm-backed implementation and a retry decorator.
package llm

import (
	"context"

	"github.com/openomni/omni/schema"
)

// ToolSpec describes one callable tool for the model. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one completion request.
type Request struct {
	Messages    []schema.Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the model's reply. ToolCalls preserves the order the model
// declared the calls in.
type Response struct {
	Content      string
	ToolCalls    []schema.ToolCall
	FinishReason string
	Usage        Usage
}

// Client generates completions. Implementations must be safe for
// concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}
