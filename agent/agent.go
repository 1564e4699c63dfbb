// Package agent implements the single-agent step loop: model call, tool
// execution, repeat until the model stops asking for tools, the step
// budget runs out, or the run pauses for user input.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/observe"
	"github.com/openomni/omni/schema"
	"github.com/openomni/omni/tools"
)

const defaultMaxSteps = 10

// ToolResultHook observes every executed tool call. Ralph uses it to track
// file modifications.
type ToolResultHook func(call schema.ToolCall, result schema.ToolResult)

// Agent drives one conversation loop. Not safe for concurrent runs; one
// goroutine owns the agent at a time.
type Agent struct {
	name         string
	client       llm.Client
	registry     *tools.Registry
	invoker      tools.Invoker
	events       *Emitter
	tracer       observe.Tracer
	state        *State
	systemPrompt string
	temperature  float64
	maxTokens    int
	onToolResult ToolResultHook
}

// Option customizes an Agent.
type Option func(*Agent)

func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

func WithMaxSteps(n int) Option {
	return func(a *Agent) { a.state.MaxSteps = n }
}

func WithRegistry(reg *tools.Registry) Option {
	return func(a *Agent) { a.registry = reg }
}

// WithParallelTools executes each batch of tool calls concurrently.
// Results still land in the order the model declared the calls.
func WithParallelTools() Option {
	return func(a *Agent) { a.invoker = tools.ParallelInvoker{} }
}

func WithTracer(t observe.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(a *Agent) { a.maxTokens = n }
}

func WithToolResultHook(h ToolResultHook) Option {
	return func(a *Agent) { a.onToolResult = h }
}

// New creates an agent around the given model client.
func New(client llm.Client, opts ...Option) *Agent {
	reg, _ := tools.NewRegistry()
	a := &Agent{
		name:     "agent",
		client:   client,
		registry: reg,
		invoker:  tools.SerialInvoker{},
		events:   NewEmitter(),
		tracer:   observe.NoopTracer{},
		state:    NewState(defaultMaxSteps),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// SetSystemPrompt replaces the system prompt between runs.
func (a *Agent) SetSystemPrompt(prompt string) { a.systemPrompt = prompt }

// SetToolResultHook installs the per-tool-result hook between runs.
func (a *Agent) SetToolResultHook(h ToolResultHook) { a.onToolResult = h }

// ResetConversation drops the message history. Illegal mid-run.
func (a *Agent) ResetConversation() error {
	if a.state.Status == StatusRunning {
		return schema.ErrAlreadyRunning
	}
	a.state.Messages = nil
	a.state.Status = StatusIdle
	a.state.PendingInput = nil
	a.state.PausedToolCallID = ""
	a.state.ErrorReason = ""
	return nil
}

// Events exposes the emitter for subscriptions.
func (a *Agent) Events() *Emitter { return a.events }

// State exposes the run state. Callers must not mutate it during a run.
func (a *Agent) State() *State { return a.state }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tools.Registry { return a.registry }

// Run starts a new run with the given user message. A completed or failed
// agent may run again; history is kept across runs. Returns the final
// assistant content. When the run pauses for user input the returned
// content is empty and State().Status is WAITING_INPUT.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	switch a.state.Status {
	case StatusRunning:
		return "", schema.ErrAlreadyRunning
	case StatusWaitingInput:
		return "", fmt.Errorf("%w: answer the pending input first", schema.ErrAlreadyRunning)
	}

	a.state.ResetForRun()
	a.state.Append(schema.UserMessage(input))
	return a.loop(ctx)
}

// ProvideInput answers a pending user input request and resumes the run.
// Only legal in WAITING_INPUT.
func (a *Agent) ProvideInput(ctx context.Context, values map[string]any) (string, error) {
	if a.state.Status != StatusWaitingInput {
		return "", schema.ErrNotWaitingInput
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode user input: %w", err)
	}
	a.state.Append(schema.ToolMessage(a.state.PausedToolCallID, string(payload)))
	a.state.ResumeFromInput()
	return a.loop(ctx)
}

// loop runs steps until a terminal state. Exhausting the step budget is a
// normal stop: the run completes with the last assistant content.
func (a *Agent) loop(ctx context.Context) (string, error) {
	lastContent := ""

	for a.state.CanContinue() {
		if ctx.Err() != nil {
			return "", a.fail("cancelled", schema.ErrCancelled)
		}

		a.state.IncrementStep()
		step := a.state.CurrentStep
		a.emit(schema.EventStepStart, step, map[string]any{"agent": a.name})

		resp, err := a.callModel(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", a.fail("cancelled", schema.ErrCancelled)
			}
			return "", a.fail("llm", err)
		}

		a.state.AddUsage(resp.Usage)
		a.emit(schema.EventLLMResponse, step, map[string]any{
			"content":       resp.Content,
			"tool_calls":    len(resp.ToolCalls),
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		})

		a.state.Append(schema.AssistantMessage(resp.Content, resp.ToolCalls...))
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			a.state.MarkCompleted()
			a.emit(schema.EventCompletion, step, map[string]any{"content": resp.Content})
			a.emitTokenSummary(step)
			return resp.Content, nil
		}

		if parked := a.parkOnHumanInput(step, resp.ToolCalls); parked {
			return lastContent, nil
		}

		a.runToolBatch(ctx, step, resp.ToolCalls)
		a.emit(schema.EventStepEnd, step, nil)
	}

	// Step budget exhausted with the model still asking for tools.
	a.state.MarkCompleted()
	a.emit(schema.EventCompletion, a.state.CurrentStep, map[string]any{
		"content":           lastContent,
		"max_steps_reached": true,
	})
	a.emitTokenSummary(a.state.CurrentStep)
	return lastContent, nil
}

func (a *Agent) callModel(ctx context.Context) (*llm.Response, error) {
	a.emit(schema.EventLLMRequest, a.state.CurrentStep, map[string]any{"model": a.client.Model()})

	ctx, end := a.tracer.StartSpan(ctx, "agent.llm",
		observe.Attr{Key: "agent", Value: a.name},
		observe.Attr{Key: "model", Value: a.client.Model()})

	resp, err := a.client.Generate(ctx, llm.Request{
		Messages:    a.promptMessages(),
		Tools:       a.registry.Specs(),
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	end(err)
	return resp, err
}

func (a *Agent) promptMessages() []schema.Message {
	if a.systemPrompt == "" {
		return a.state.Messages
	}
	msgs := make([]schema.Message, 0, len(a.state.Messages)+1)
	msgs = append(msgs, schema.SystemMessage(a.systemPrompt))
	return append(msgs, a.state.Messages...)
}

// parkOnHumanInput scans the calls in declared order and pauses the run on
// the first one that needs user input.
func (a *Agent) parkOnHumanInput(step int, calls []schema.ToolCall) bool {
	for _, call := range calls {
		tool, err := a.registry.Get(call.Name)
		if err != nil {
			continue
		}
		hi, ok := tool.(tools.HumanInput)
		if !ok {
			continue
		}
		req, err := hi.InputRequest(call.ID, call.Args)
		if err != nil || req == nil {
			req = &schema.UserInputRequest{
				ToolCallID: call.ID,
				Fields: []schema.UserInputField{{
					Name:        "input",
					Type:        "string",
					Description: "Additional information needed to continue",
				}},
			}
		}
		a.state.MarkWaitingInput(req)
		a.emit(schema.EventUserInputRequired, step, map[string]any{
			"tool_call_id": req.ToolCallID,
			"fields":       req.Fields,
			"context":      req.Context,
		})
		return true
	}
	return false
}

// runToolBatch executes the calls and appends one tool message per call in
// the declared order.
func (a *Agent) runToolBatch(ctx context.Context, step int, calls []schema.ToolCall) {
	for _, call := range calls {
		a.emit(schema.EventToolStart, step, map[string]any{
			"tool_call_id": call.ID,
			"tool":         call.Name,
			"args":         string(call.Args),
		})
	}

	ctx, end := a.tracer.StartSpan(ctx, "agent.tools",
		observe.Attr{Key: "agent", Value: a.name},
		observe.Attr{Key: "count", Value: fmt.Sprintf("%d", len(calls))})
	results := a.invoker.Invoke(ctx, a.registry, calls)
	end(nil)

	for i, call := range calls {
		result := results[i]
		a.emit(schema.EventToolEnd, step, map[string]any{
			"tool_call_id": call.ID,
			"tool":         call.Name,
			"success":      result.Success,
			"content":      result.Text(),
		})
		a.state.Append(schema.ToolMessage(call.ID, result.Text()))
		if a.onToolResult != nil {
			a.onToolResult(call, result)
		}
	}
}

func (a *Agent) fail(stage string, err error) error {
	a.state.MarkError(err.Error())
	failure := &schema.RunFailure{Stage: stage, Err: err}
	a.emit(schema.EventError, a.state.CurrentStep, map[string]any{
		"stage": stage,
		"error": err.Error(),
	})
	return failure
}

func (a *Agent) emit(t schema.EventType, step int, data map[string]any) {
	a.events.Emit(schema.NewEvent(t, step, data))
}

func (a *Agent) emitTokenSummary(step int) {
	a.emit(schema.EventTokenSummary, step, map[string]any{
		"input_tokens":  a.state.InputTokens,
		"output_tokens": a.state.OutputTokens,
	})
}
