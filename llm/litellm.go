package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/voocel/litellm"

	"github.com/openomni/omni/schema"
)

// LiteClient is a Client backed by the litellm multi-provider library. The
// provider is chosen from the model name prefix.
type LiteClient struct {
	client *litellm.Client
	config ClientConfig
}

// ClientConfig holds provider settings for a LiteClient.
type ClientConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// ClientOption customizes a LiteClient.
type ClientOption func(*ClientConfig)

func WithAPIKey(key string) ClientOption {
	return func(c *ClientConfig) { c.APIKey = key }
}

func WithBaseURL(url string) ClientOption {
	return func(c *ClientConfig) { c.BaseURL = url }
}

func WithTemperature(t float64) ClientOption {
	return func(c *ClientConfig) { c.Temperature = t }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *ClientConfig) { c.MaxTokens = n }
}

// NewLiteClient builds a client for the given model.
func NewLiteClient(model string, opts ...ClientOption) (*LiteClient, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: empty model name", schema.ErrNoModel)
	}
	cfg := ClientConfig{Model: model, Temperature: 0.7, MaxTokens: 4096}
	for _, opt := range opts {
		opt(&cfg)
	}

	provider := providerOption(cfg)
	client := litellm.New(provider, litellm.WithDefaults(cfg.MaxTokens, cfg.Temperature))
	return &LiteClient{client: client, config: cfg}, nil
}

func providerOption(cfg ClientConfig) litellm.ClientOption {
	switch {
	case isAnthropicModel(cfg.Model):
		if cfg.BaseURL != "" {
			return litellm.WithAnthropic(cfg.APIKey, cfg.BaseURL)
		}
		return litellm.WithAnthropic(cfg.APIKey)
	case isGeminiModel(cfg.Model):
		if cfg.BaseURL != "" {
			return litellm.WithGemini(cfg.APIKey, cfg.BaseURL)
		}
		return litellm.WithGemini(cfg.APIKey)
	default:
		if cfg.BaseURL != "" {
			return litellm.WithOpenAI(cfg.APIKey, cfg.BaseURL)
		}
		return litellm.WithOpenAI(cfg.APIKey)
	}
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(model, "claude")
}

func isGeminiModel(model string) bool {
	return strings.HasPrefix(model, "gemini")
}

// Generate implements Client.
func (c *LiteClient) Generate(ctx context.Context, req Request) (*Response, error) {
	lreq := &litellm.Request{
		Model:    c.config.Model,
		Messages: toLiteMessages(req.Messages),
		Tools:    toLiteTools(req.Tools),
	}
	if req.Temperature != 0 {
		lreq.Temperature = litellm.Float64Ptr(req.Temperature)
	}
	if req.MaxTokens != 0 {
		lreq.MaxTokens = litellm.IntPtr(req.MaxTokens)
	}

	resp, err := c.client.Complete(ctx, lreq)
	if err != nil {
		return nil, fmt.Errorf("litellm completion: %w", err)
	}

	return &Response{
		Content:      resp.Content,
		ToolCalls:    fromLiteToolCalls(resp.ToolCalls),
		FinishReason: resp.FinishReason,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Model returns the configured model name.
func (c *LiteClient) Model() string { return c.config.Model }

func toLiteMessages(messages []schema.Message) []litellm.Message {
	result := make([]litellm.Message, len(messages))
	for i, msg := range messages {
		lm := litellm.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			lm.ToolCalls = make([]litellm.ToolCall, len(msg.ToolCalls))
			for j, call := range msg.ToolCalls {
				lm.ToolCalls[j] = litellm.ToolCall{
					ID:   call.ID,
					Type: "function",
					Function: litellm.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Args),
					},
				}
			}
		}
		if msg.ToolCallID != "" {
			lm.ToolCallID = msg.ToolCallID
		}
		result[i] = lm
	}
	return result
}

func toLiteTools(tools []ToolSpec) []litellm.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]litellm.Tool, len(tools))
	for i, tool := range tools {
		result[i] = litellm.Tool{
			Type: "function",
			Function: litellm.FunctionSchema{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return result
}

func fromLiteToolCalls(calls []litellm.ToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]schema.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = schema.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: []byte(call.Function.Arguments),
		}
	}
	return result
}
