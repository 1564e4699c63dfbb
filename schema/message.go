package schema

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Assistant messages may carry tool
// calls; tool messages answer exactly one call via ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Args is the raw
// JSON argument object exactly as the model produced it.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the outcome of executing one tool call. A failed execution
// is still a result: Success false with Error set, never a Go error that
// escapes the tool boundary.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Text renders the result the way it is fed back to the model.
func (r ToolResult) Text() string {
	if r.Success {
		return r.Content
	}
	return "Error: " + r.Error
}

// OKResult builds a successful tool result.
func OKResult(content string) ToolResult {
	return ToolResult{Success: true, Content: content}
}

// FailResult builds a failed tool result.
func FailResult(err string) ToolResult {
	return ToolResult{Success: false, Error: err}
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls, Timestamp: time.Now()}
}

// ToolMessage creates a tool message answering the given call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Timestamp: time.Now()}
}

// UserInputField describes one value the user must provide to unblock a
// paused run.
type UserInputField struct {
	Name        string `json:"field_name"`
	Type        string `json:"field_type"`
	Description string `json:"field_description"`
	Value       string `json:"value,omitempty"`
}

// UserInputRequest is the sentinel a tool yields when it needs human input.
// The loop parks on it instead of executing the call.
type UserInputRequest struct {
	ToolCallID string           `json:"tool_call_id"`
	Fields     []UserInputField `json:"fields"`
	Context    string           `json:"context,omitempty"`
}
