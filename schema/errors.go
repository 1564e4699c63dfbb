package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the runtime.
var (
	ErrUnknownTool      = errors.New("tool not found")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrNotWaitingInput  = errors.New("agent is not waiting for input")
	ErrAlreadyRunning   = errors.New("agent run already in progress")
	ErrCancelled        = errors.New("run cancelled")
	ErrNoModel          = errors.New("no LLM client configured")
	ErrSessionNotFound  = errors.New("session not found")
)

// RunFailure is the terminal error of a run that ended in ERROR status.
// Stage names where it broke (llm, tool, cancelled).
type RunFailure struct {
	Stage string
	Err   error
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunFailure) Unwrap() error { return e.Err }

// TransientError marks an LLM failure worth retrying (rate limits,
// timeouts, 5xx responses).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. Besides the explicit
// wrapper it recognizes the usual provider failure shapes by message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"rate limit", "429", "500", "502", "503", "504",
		"timeout", "timed out", "connection reset", "overloaded",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
