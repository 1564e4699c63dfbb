package schema

import "time"

// EventType classifies runtime events emitted during a run.
type EventType string

const (
	EventStepStart         EventType = "step_start"
	EventStepEnd           EventType = "step_end"
	EventLLMRequest        EventType = "llm_request"
	EventLLMResponse       EventType = "llm_response"
	EventToolStart         EventType = "tool_start"
	EventToolEnd           EventType = "tool_end"
	EventUserInputRequired EventType = "user_input_required"
	EventCompletion        EventType = "completion"
	EventError             EventType = "error"
	EventTokenSummary      EventType = "token_summary"

	EventRalphIterationStart EventType = "ralph_iteration_start"
	EventRalphIterationEnd   EventType = "ralph_iteration_end"
	EventRalphCompletion     EventType = "ralph_completion"
)

// Event is a single runtime occurrence. Data carries type-specific payload
// fields (tool name, result, usage and so on).
type Event struct {
	Type      EventType      `json:"type"`
	Step      int            `json:"step,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, step int, data map[string]any) Event {
	return Event{Type: t, Step: step, Data: data, Timestamp: time.Now()}
}
