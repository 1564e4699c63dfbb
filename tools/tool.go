// Package tools defines the tool contract, a validating registry and batch
// invokers for tool calls issued by the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openomni/omni/schema"
)

// Tool is a capability the model can invoke. Execute must never panic
// across the boundary; failures come back as an unsuccessful ToolResult.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema object describing the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args json.RawMessage) schema.ToolResult
}

// HumanInput is implemented by tools that pause the run for user input
// instead of executing. The loop parks on the returned request.
type HumanInput interface {
	Tool
	InputRequest(callID string, args json.RawMessage) (*schema.UserInputRequest, error)
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args json.RawMessage) (string, error)
}

// NewFuncTool wraps fn as a Tool with the given schema.
func NewFuncTool(name, description string, parameters map[string]any, fn func(ctx context.Context, args json.RawMessage) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, parameters: parameters, fn: fn}
}

func (t *FuncTool) Name() string               { return t.name }
func (t *FuncTool) Description() string        { return t.description }
func (t *FuncTool) Parameters() map[string]any { return t.parameters }

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (result schema.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = schema.FailResult(fmt.Sprintf("tool %s panicked: %v", t.name, r))
		}
	}()
	out, err := t.fn(ctx, args)
	if err != nil {
		return schema.FailResult(err.Error())
	}
	return schema.OKResult(out)
}

// ObjectSchema builds a JSON Schema object with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// StringProp describes a string parameter.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// NumberProp describes a numeric parameter.
func NumberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// BoolProp describes a boolean parameter.
func BoolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// ArrayProp describes an array parameter with the given item schema.
func ArrayProp(description string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": description, "items": items}
}
