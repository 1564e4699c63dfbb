package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openomni/omni/schema"
)

// Invoker executes a batch of tool calls against a registry. Results are
// always returned indexed by the call order the model declared, regardless
// of completion order.
type Invoker interface {
	Invoke(ctx context.Context, reg *Registry, calls []schema.ToolCall) []schema.ToolResult
}

// SerialInvoker executes calls one at a time.
type SerialInvoker struct{}

func (SerialInvoker) Invoke(ctx context.Context, reg *Registry, calls []schema.ToolCall) []schema.ToolResult {
	results := make([]schema.ToolResult, len(calls))
	for i, call := range calls {
		results[i] = executeCall(ctx, reg, call)
	}
	return results
}

// ParallelInvoker executes the whole batch concurrently.
type ParallelInvoker struct{}

func (ParallelInvoker) Invoke(ctx context.Context, reg *Registry, calls []schema.ToolCall) []schema.ToolResult {
	results := make([]schema.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			results[i] = executeCall(ctx, reg, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeCall resolves, validates and runs a single call. Every failure
// mode folds into a failed ToolResult so the loop can keep going.
func executeCall(ctx context.Context, reg *Registry, call schema.ToolCall) (result schema.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = schema.FailResult(fmt.Sprintf("tool %s panicked: %v", call.Name, r))
		}
	}()

	tool, err := reg.Get(call.Name)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownTool) {
			return schema.FailResult(fmt.Sprintf("tool %q not found; available: %v", call.Name, reg.Names()))
		}
		return schema.FailResult(err.Error())
	}

	if err := reg.ValidateArgs(call.Name, call.Args); err != nil {
		return schema.FailResult(err.Error())
	}

	return tool.Execute(ctx, call.Args)
}
