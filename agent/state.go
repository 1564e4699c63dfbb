package agent

import (
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/schema"
)

// Status is the agent lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// State is the mutable run state of one agent. It has a single owner, the
// driving goroutine, and carries no internal locking.
type State struct {
	Status       Status           `json:"status"`
	CurrentStep  int              `json:"current_step"`
	MaxSteps     int              `json:"max_steps"`
	Messages     []schema.Message `json:"messages"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`

	PendingInput     *schema.UserInputRequest `json:"pending_input,omitempty"`
	PausedToolCallID string                   `json:"paused_tool_call_id,omitempty"`
	ErrorReason      string                   `json:"error_reason,omitempty"`
}

// NewState creates an idle state with the given step budget.
func NewState(maxSteps int) *State {
	return &State{Status: StatusIdle, MaxSteps: maxSteps}
}

// ResetForRun prepares a fresh run. Conversation history is kept; step
// counter and error markers are cleared.
func (s *State) ResetForRun() {
	s.Status = StatusRunning
	s.CurrentStep = 0
	s.PendingInput = nil
	s.PausedToolCallID = ""
	s.ErrorReason = ""
}

// CanContinue reports whether the loop may take another step.
func (s *State) CanContinue() bool {
	return s.Status == StatusRunning && s.CurrentStep < s.MaxSteps
}

// IncrementStep advances the step counter.
func (s *State) IncrementStep() { s.CurrentStep++ }

// AddUsage accumulates token counts.
func (s *State) AddUsage(u llm.Usage) {
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
}

// Append adds messages to the conversation.
func (s *State) Append(msgs ...schema.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// MarkWaitingInput parks the run on a pending user input request.
func (s *State) MarkWaitingInput(req *schema.UserInputRequest) {
	s.Status = StatusWaitingInput
	s.PendingInput = req
	s.PausedToolCallID = req.ToolCallID
}

// ResumeFromInput returns to RUNNING after the user answered.
func (s *State) ResumeFromInput() {
	s.Status = StatusRunning
	s.PendingInput = nil
	s.PausedToolCallID = ""
}

// MarkCompleted ends the run successfully.
func (s *State) MarkCompleted() { s.Status = StatusCompleted }

// MarkError ends the run with a failure reason.
func (s *State) MarkError(reason string) {
	s.Status = StatusError
	s.ErrorReason = reason
}

// Clone deep-copies the state for snapshots.
func (s *State) Clone() *State {
	out := *s
	out.Messages = make([]schema.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.PendingInput != nil {
		req := *s.PendingInput
		req.Fields = make([]schema.UserInputField, len(s.PendingInput.Fields))
		copy(req.Fields, s.PendingInput.Fields)
		out.PendingInput = &req
	}
	return &out
}
