// Package session persists conversation sessions and their run records
// across process restarts, with file, Redis and SQLite backends behind one
// Store contract.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openomni/omni/schema"
)

// Runner type tags recorded with each run.
const (
	RunnerAgent      = "agent"
	RunnerTeamLeader = "team_leader"
	RunnerTeamMember = "team_member"
	RunnerRalph      = "ralph"
)

// RunRecord is one completed run inside a session.
type RunRecord struct {
	RunID       string         `json:"run_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	RunnerType  string         `json:"runner_type"`
	RunnerName  string         `json:"runner_name,omitempty"`
	Task        string         `json:"task"`
	Response    string         `json:"response"`
	Success     bool           `json:"success"`
	Steps       int            `json:"steps"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewRunRecord creates a record stamped with a fresh id and the current
// time.
func NewRunRecord(runnerType, runnerName, task, response string, success bool, steps int) RunRecord {
	return RunRecord{
		RunID:      uuid.New().String(),
		RunnerType: runnerType,
		RunnerName: runnerName,
		Task:       task,
		Response:   response,
		Success:    success,
		Steps:      steps,
		Timestamp:  time.Now(),
	}
}

// Session groups the runs of one conversation.
type Session struct {
	ID        string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	Runs      []RunRecord    `json:"runs"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession creates an empty session. An empty id gets a generated one.
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// History flattens the last n runs into (user task, assistant response)
// message pairs for prompt continuation. n <= 0 means all runs.
func (s *Session) History(n int) []schema.Message {
	runs := s.Runs
	if n > 0 && len(runs) > n {
		runs = runs[len(runs)-n:]
	}
	msgs := make([]schema.Message, 0, 2*len(runs))
	for _, run := range runs {
		msgs = append(msgs, schema.UserMessage(run.Task))
		msgs = append(msgs, schema.AssistantMessage(run.Response))
	}
	return msgs
}

// HistoryContext renders the last n runs as a tagged block for injection
// into a system prompt.
func (s *Session) HistoryContext(n int) string {
	runs := s.Runs
	if n > 0 && len(runs) > n {
		runs = runs[len(runs)-n:]
	}
	if len(runs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<session_history>\n")
	for _, run := range runs {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", run.Task, run.Response)
	}
	b.WriteString("</session_history>")
	return b.String()
}

// Store persists sessions. AddRun must be atomic: concurrent callers may
// not lose each other's runs.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	AddRun(ctx context.Context, id string, run RunRecord) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	// CleanupExpired removes sessions idle longer than maxAge and returns
	// how many were removed.
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)
	Close() error
}
