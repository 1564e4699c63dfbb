// Package omni provides one-call entry points over the agent runtime for
// callers that do not need to assemble the pieces themselves.
package omni

import (
	"context"
	"fmt"

	"github.com/openomni/omni/agent"
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/ralph"
)

// Query builds a one-shot agent around client and runs it on input.
func Query(ctx context.Context, client llm.Client, input string, opts ...agent.Option) (string, error) {
	if client == nil {
		return "", fmt.Errorf("omni: client is nil")
	}
	return agent.New(client, opts...).Run(ctx, input)
}

// QueryAgent runs input and returns the agent as well, so callers can
// answer a pending input request or inspect the final state.
func QueryAgent(ctx context.Context, client llm.Client, input string, opts ...agent.Option) (*agent.Agent, string, error) {
	if client == nil {
		return nil, "", fmt.Errorf("omni: client is nil")
	}
	a := agent.New(client, opts...)
	content, err := a.Run(ctx, input)
	return a, content, err
}

// Iterate runs task through the iterative meta-loop until the completion
// promise appears or the loop gives up.
func Iterate(ctx context.Context, client llm.Client, task string, cfg ralph.Config, opts ...agent.Option) (*ralph.Result, error) {
	if client == nil {
		return nil, fmt.Errorf("omni: client is nil")
	}
	runner, err := ralph.NewRunner(agent.New(client, opts...), cfg)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, task)
}

// Preset returns a built-in role prompt.
func Preset(name string) string {
	if prompt, ok := presets[name]; ok {
		return prompt
	}
	return "You are a " + name + "."
}

// WithPreset applies a built-in role prompt to an agent.
func WithPreset(name string) agent.Option {
	return agent.WithSystemPrompt(Preset(name))
}

var presets = map[string]string{
	"assistant":  "You are a friendly assistant who provides clear, accurate, and concise answers.",
	"researcher": "You are a research assistant. Analyze the problem first, then provide a conclusion with rationale.",
	"writer":     "You are a writing assistant who produces structured, readable content.",
	"analyst":    "You are an analytical assistant who breaks down problems and delivers data-driven conclusions.",
	"engineer":   "You are an engineer who values feasibility and best practices.",
}
