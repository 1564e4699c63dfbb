// Package team coordinates a leader agent that delegates work to member
// agents. The leader is a plain step loop whose only special capability is
// the delegation tool; members run isolated loops and report back through
// the tool result.
package team

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openomni/omni/agent"
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/session"
	"github.com/openomni/omni/tools"
)

const (
	defaultLeaderSteps = 10
	defaultMemberSteps = 10
)

// MemberConfig describes one team member.
type MemberConfig struct {
	ID           string
	Name         string
	Role         string
	Instructions string
	Tools        []tools.Tool
	MaxSteps     int
}

// Config describes the team.
type Config struct {
	Name        string
	Description string
	Members     []MemberConfig
	// DelegateToAll skips leader reasoning and fans the task out to every
	// member.
	DelegateToAll  bool
	LeaderMaxSteps int
}

// MemberRun records one delegated task execution.
type MemberRun struct {
	MemberID string `json:"member_id"`
	Task     string `json:"task"`
	Response string `json:"response"`
	Success  bool   `json:"success"`
	Steps    int    `json:"steps"`
}

// RunResponse is the outcome of one team run.
type RunResponse struct {
	Success      bool        `json:"success"`
	TeamName     string      `json:"team_name"`
	Content      string      `json:"content"`
	MemberRuns   []MemberRun `json:"member_runs"`
	TotalSteps   int         `json:"total_steps"`
	WaitingInput bool        `json:"waiting_input,omitempty"`
}

// Team runs a leader/member controller. One Run at a time.
type Team struct {
	cfg    Config
	client llm.Client
	events *agent.Emitter
	store  session.Store
	sessID string

	mu          sync.Mutex
	memberRuns  []MemberRun
	totalSteps  int
	leader      *agent.Agent
	leaderRunID string
	pendingTask string
}

// TeamOption customizes a Team.
type TeamOption func(*Team)

// WithSessionStore records leader and member runs into the given store
// under sessionID.
func WithSessionStore(store session.Store, sessionID string) TeamOption {
	return func(t *Team) {
		t.store = store
		t.sessID = sessionID
	}
}

// WithEmitter shares an event emitter with the caller.
func WithEmitter(e *agent.Emitter) TeamOption {
	return func(t *Team) { t.events = e }
}

// New assembles a team around one model client.
func New(cfg Config, client llm.Client, opts ...TeamOption) (*Team, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("team: missing name")
	}
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("team %q: no members", cfg.Name)
	}
	seen := make(map[string]bool)
	for _, m := range cfg.Members {
		if m.ID == "" {
			return nil, fmt.Errorf("team %q: member without id", cfg.Name)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("team %q: duplicate member id %q", cfg.Name, m.ID)
		}
		seen[m.ID] = true
	}
	if cfg.LeaderMaxSteps <= 0 {
		cfg.LeaderMaxSteps = defaultLeaderSteps
	}

	t := &Team{cfg: cfg, client: client, events: agent.NewEmitter()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Events exposes the team's emitter.
func (t *Team) Events() *agent.Emitter { return t.events }

// Leader returns the leader agent of the current or last run, e.g. to
// answer a pending input request.
func (t *Team) Leader() *agent.Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leader
}

// Run executes the team on one user message.
func (t *Team) Run(ctx context.Context, message string) (*RunResponse, error) {
	t.mu.Lock()
	t.memberRuns = nil
	t.totalSteps = 0
	t.mu.Unlock()

	if t.cfg.DelegateToAll {
		return t.runFanOut(ctx, message)
	}
	return t.runWithLeader(ctx, message)
}

// runWithLeader lets the leader reason and delegate selectively.
func (t *Team) runWithLeader(ctx context.Context, message string) (*RunResponse, error) {
	reg, err := tools.NewRegistry(newDelegateTool())
	if err != nil {
		return nil, err
	}

	leader := agent.New(t.client,
		agent.WithName(t.cfg.Name+"-leader"),
		agent.WithSystemPrompt(t.leaderPrompt()),
		agent.WithMaxSteps(t.cfg.LeaderMaxSteps),
		agent.WithRegistry(reg),
	)
	leader.Events().OnAny(t.events.Emit)

	leaderRunID := uuid.New().String()
	t.mu.Lock()
	t.leader = leader
	t.leaderRunID = leaderRunID
	t.pendingTask = message
	t.mu.Unlock()

	ctx = withTeamRun(ctx, t, leaderRunID)

	content, err := leader.Run(ctx, message)
	t.addSteps(leader.State().CurrentStep)
	if err != nil {
		t.recordLeaderRun(ctx, leaderRunID, message, content, false)
		return nil, err
	}

	resp := t.buildResponse(content)
	resp.WaitingInput = leader.State().Status == agent.StatusWaitingInput
	if !resp.WaitingInput {
		t.recordLeaderRun(ctx, leaderRunID, message, content, resp.Success)
	}
	return resp, nil
}

// runFanOut sends the task to every member concurrently and concatenates
// the tagged results in roster order.
func (t *Team) runFanOut(ctx context.Context, message string) (*RunResponse, error) {
	leaderRunID := uuid.New().String()
	ctx = withTeamRun(ctx, t, leaderRunID)

	results := make([]MemberRun, len(t.cfg.Members))
	var wg sync.WaitGroup
	for i, member := range t.cfg.Members {
		wg.Add(1)
		go func(i int, member MemberConfig) {
			defer wg.Done()
			results[i] = t.runMember(ctx, member, message)
		}(i, member)
	}
	wg.Wait()

	var b strings.Builder
	success := true
	for i, run := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", run.MemberID, run.Response)
		if !run.Success {
			success = false
		}
	}
	content := b.String()
	t.recordLeaderRun(ctx, leaderRunID, message, content, success)

	t.mu.Lock()
	defer t.mu.Unlock()
	return &RunResponse{
		Success:    success,
		TeamName:   t.cfg.Name,
		Content:    content,
		MemberRuns: t.memberRuns,
		TotalSteps: t.totalSteps,
	}, nil
}

// ProvideInput answers the leader's pending input request and finishes the
// run.
func (t *Team) ProvideInput(ctx context.Context, values map[string]any) (*RunResponse, error) {
	t.mu.Lock()
	leader := t.leader
	leaderRunID := t.leaderRunID
	task := t.pendingTask
	t.mu.Unlock()
	if leader == nil {
		return nil, fmt.Errorf("team %q: no run in progress", t.cfg.Name)
	}

	ctx = withTeamRun(ctx, t, leaderRunID)
	stepsBefore := leader.State().CurrentStep
	content, err := leader.ProvideInput(ctx, values)
	t.addSteps(leader.State().CurrentStep - stepsBefore)
	if err != nil {
		return nil, err
	}
	resp := t.buildResponse(content)
	resp.WaitingInput = leader.State().Status == agent.StatusWaitingInput
	if !resp.WaitingInput {
		t.recordLeaderRun(ctx, leaderRunID, task, content, resp.Success)
	}
	return resp, nil
}

func (t *Team) buildResponse(content string) *RunResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	success := content != ""
	for _, run := range t.memberRuns {
		if !run.Success {
			success = false
		}
	}
	runs := make([]MemberRun, len(t.memberRuns))
	copy(runs, t.memberRuns)
	return &RunResponse{
		Success:    success,
		TeamName:   t.cfg.Name,
		Content:    content,
		MemberRuns: runs,
		TotalSteps: t.totalSteps,
	}
}

// runMember executes one delegated task on a fresh member agent.
func (t *Team) runMember(ctx context.Context, member MemberConfig, task string) MemberRun {
	maxSteps := member.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMemberSteps
	}

	reg, err := tools.NewRegistry(member.Tools...)
	if err != nil {
		return t.finishMemberRun(ctx, MemberRun{MemberID: member.ID, Task: task,
			Response: fmt.Sprintf("member setup failed: %v", err)})
	}

	a := agent.New(t.client,
		agent.WithName(member.ID),
		agent.WithSystemPrompt(memberPrompt(member)),
		agent.WithMaxSteps(maxSteps),
		agent.WithRegistry(reg),
	)
	a.Events().OnAny(t.events.Emit)

	response, err := a.Run(ctx, task)
	run := MemberRun{
		MemberID: member.ID,
		Task:     task,
		Response: response,
		Steps:    a.State().CurrentStep,
		Success:  err == nil && response != "" && a.State().Status != agent.StatusError,
	}
	if err != nil {
		run.Response = fmt.Sprintf("member %s failed: %v", member.ID, err)
	}
	return t.finishMemberRun(ctx, run)
}

func (t *Team) finishMemberRun(ctx context.Context, run MemberRun) MemberRun {
	t.mu.Lock()
	t.memberRuns = append(t.memberRuns, run)
	t.totalSteps += run.Steps
	t.mu.Unlock()

	if t.store != nil && t.sessID != "" {
		record := session.NewRunRecord(session.RunnerTeamMember, run.MemberID, run.Task, run.Response, run.Success, run.Steps)
		record.ParentRunID = parentRunID(ctx)
		_ = t.store.AddRun(ctx, t.sessID, record)
	}
	return run
}

func (t *Team) recordLeaderRun(ctx context.Context, runID, task, response string, success bool) {
	if t.store == nil || t.sessID == "" {
		return
	}
	record := session.NewRunRecord(session.RunnerTeamLeader, t.cfg.Name, task, response, success, t.steps())
	record.RunID = runID
	_ = t.store.AddRun(ctx, t.sessID, record)
}

func (t *Team) addSteps(n int) {
	t.mu.Lock()
	t.totalSteps += n
	t.mu.Unlock()
}

func (t *Team) steps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSteps
}

func (t *Team) member(id string) (MemberConfig, bool) {
	for _, m := range t.cfg.Members {
		if m.ID == id {
			return m, true
		}
	}
	return MemberConfig{}, false
}

func (t *Team) memberIDs() []string {
	ids := make([]string, len(t.cfg.Members))
	for i, m := range t.cfg.Members {
		ids[i] = m.ID
	}
	return ids
}

// leaderPrompt renders the leader's system prompt with the member roster.
func (t *Team) leaderPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<team_name>\n%s\n</team_name>\n\n", t.cfg.Name)
	if t.cfg.Description != "" {
		fmt.Fprintf(&b, "<team_description>\n%s\n</team_description>\n\n", t.cfg.Description)
	}
	b.WriteString("<team_members>\n")
	for _, m := range t.cfg.Members {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		fmt.Fprintf(&b, "- id: %s | name: %s | role: %s\n", m.ID, name, m.Role)
	}
	b.WriteString("</team_members>\n\n")
	b.WriteString("<how_to_respond>\n")
	b.WriteString("You are the team leader. Break the user's request into tasks and use the\n")
	b.WriteString("delegate_task tool to assign each task to the best-suited member by id.\n")
	b.WriteString("Wait for member results, then compose the final answer yourself. Do not\n")
	b.WriteString("fabricate member output.\n")
	b.WriteString("</how_to_respond>")
	return b.String()
}

func memberPrompt(m MemberConfig) string {
	var b strings.Builder
	name := m.Name
	if name == "" {
		name = m.ID
	}
	fmt.Fprintf(&b, "You are %s", name)
	if m.Role != "" {
		fmt.Fprintf(&b, ", %s", m.Role)
	}
	b.WriteString(".")
	if m.Instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Instructions)
	}
	return b.String()
}
