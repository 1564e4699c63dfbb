package team

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/schema"
	"github.com/openomni/omni/session"
)

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
	calls     int
}

func (m *scriptedModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.calls >= len(m.responses) {
		return &llm.Response{Content: "done", FinishReason: "stop"}, nil
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Model() string { return "mock" }

func textResponse(content string) *llm.Response {
	return &llm.Response{Content: content, FinishReason: "stop"}
}

func delegateResponse(callID, memberID, task string) *llm.Response {
	args, _ := json.Marshal(map[string]string{"member_id": memberID, "task": task})
	return &llm.Response{
		ToolCalls:    []schema.ToolCall{{ID: callID, Name: DelegateToolName, Args: args}},
		FinishReason: "tool_calls",
	}
}

func TestLeaderDelegatesToMember(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		delegateResponse("c1", "research", "find the answer"),
		textResponse("the answer is 42"),
		textResponse("final: 42"),
	}}

	team, err := New(Config{
		Name:    "qa",
		Members: []MemberConfig{{ID: "research", Name: "Researcher", Role: "looks things up"}},
	}, model)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := team.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Content != "final: 42" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.MemberRuns) != 1 {
		t.Fatalf("expected 1 member run, got %d", len(resp.MemberRuns))
	}
	run := resp.MemberRuns[0]
	if run.MemberID != "research" || run.Task != "find the answer" || run.Response != "the answer is 42" || !run.Success {
		t.Fatalf("member run wrong: %+v", run)
	}
	if resp.TotalSteps != 3 {
		t.Fatalf("expected 3 total steps, got %d", resp.TotalSteps)
	}
}

func TestUnknownMemberBecomesFailedToolResult(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		delegateResponse("c1", "nobody", "do something"),
		textResponse("could not delegate"),
	}}

	team, err := New(Config{
		Name:    "qa",
		Members: []MemberConfig{{ID: "research"}},
	}, model)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := team.Run(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.MemberRuns) != 0 {
		t.Fatalf("no member should have run: %+v", resp.MemberRuns)
	}

	// The leader sees the failure as a tool message listing valid ids.
	last := model.requests[len(model.requests)-1]
	toolMsg := last.Messages[len(last.Messages)-1]
	if toolMsg.Role != schema.RoleTool {
		t.Fatalf("expected tool message, got %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, `unknown member "nobody"`) || !strings.Contains(toolMsg.Content, "research") {
		t.Fatalf("tool message should name valid ids: %q", toolMsg.Content)
	}
}

func TestLeaderPromptListsMembers(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{textResponse("hi")}}
	team, err := New(Config{
		Name:        "builders",
		Description: "builds software",
		Members: []MemberConfig{
			{ID: "coder", Name: "Coder", Role: "writes code"},
			{ID: "tester", Role: "tests code"},
		},
	}, model)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := team.Run(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	system := model.requests[0].Messages[0]
	if system.Role != schema.RoleSystem {
		t.Fatalf("expected system message first, got %+v", system)
	}
	for _, want := range []string{
		"<team_name>", "builders",
		"<team_description>", "builds software",
		"<team_members>", "id: coder", "role: writes code", "id: tester",
		"<how_to_respond>", "delegate_task",
	} {
		if !strings.Contains(system.Content, want) {
			t.Fatalf("leader prompt missing %q:\n%s", want, system.Content)
		}
	}
}

// fixedModel answers every request with the same content.
type fixedModel struct{ content string }

func (m fixedModel) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: m.content, FinishReason: "stop"}, nil
}

func (m fixedModel) Model() string { return "fixed" }

func TestFanOutRunsAllMembersInRosterOrder(t *testing.T) {
	team, err := New(Config{
		Name:          "panel",
		DelegateToAll: true,
		Members: []MemberConfig{
			{ID: "alpha"},
			{ID: "beta"},
			{ID: "gamma"},
		},
	}, fixedModel{content: "ok"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := team.Run(context.Background(), "evaluate this")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("fan-out should succeed: %+v", resp)
	}
	if len(resp.MemberRuns) != 3 {
		t.Fatalf("expected 3 member runs, got %d", len(resp.MemberRuns))
	}
	want := "[alpha]\nok\n\n[beta]\nok\n\n[gamma]\nok"
	if resp.Content != want {
		t.Fatalf("content not in roster order:\n%s", resp.Content)
	}
	if resp.TotalSteps != 3 {
		t.Fatalf("expected 3 total steps, got %d", resp.TotalSteps)
	}
}

func TestSessionRecording(t *testing.T) {
	store := session.NewMemoryStore()
	model := &scriptedModel{responses: []*llm.Response{
		delegateResponse("c1", "research", "dig"),
		textResponse("found it"),
		textResponse("final"),
	}}

	team, err := New(Config{
		Name:    "qa",
		Members: []MemberConfig{{ID: "research"}},
	}, model, WithSessionStore(store, "sess-1"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := team.Run(context.Background(), "question"); err != nil {
		t.Fatal(err)
	}

	sess, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Runs) != 2 {
		t.Fatalf("expected member and leader runs, got %d", len(sess.Runs))
	}

	member, leader := sess.Runs[0], sess.Runs[1]
	if member.RunnerType != session.RunnerTeamMember || member.RunnerName != "research" {
		t.Fatalf("member run wrong: %+v", member)
	}
	if leader.RunnerType != session.RunnerTeamLeader || leader.Task != "question" || leader.Response != "final" {
		t.Fatalf("leader run wrong: %+v", leader)
	}
	if member.ParentRunID == "" || member.ParentRunID != leader.RunID {
		t.Fatalf("member run not linked to leader: member=%q leader=%q", member.ParentRunID, leader.RunID)
	}
}

func TestConfigValidation(t *testing.T) {
	model := fixedModel{content: "x"}

	if _, err := New(Config{Members: []MemberConfig{{ID: "a"}}}, model); err == nil {
		t.Fatal("missing team name accepted")
	}
	if _, err := New(Config{Name: "t"}, model); err == nil {
		t.Fatal("empty roster accepted")
	}
	if _, err := New(Config{Name: "t", Members: []MemberConfig{{ID: "a"}, {ID: "a"}}}, model); err == nil {
		t.Fatal("duplicate member id accepted")
	}
	if _, err := New(Config{Name: "t", Members: []MemberConfig{{}}}, model); err == nil {
		t.Fatal("member without id accepted")
	}
}

func TestEventsBubbleUp(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		delegateResponse("c1", "research", "dig"),
		textResponse("found"),
		textResponse("final"),
	}}
	team, err := New(Config{
		Name:    "qa",
		Members: []MemberConfig{{ID: "research"}},
	}, model)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	counts := map[schema.EventType]int{}
	team.Events().OnAny(func(ev schema.Event) {
		mu.Lock()
		counts[ev.Type]++
		mu.Unlock()
	})

	if _, err := team.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	// One completion from the member loop, one from the leader loop.
	if counts[schema.EventCompletion] != 2 {
		t.Fatalf("expected 2 completion events, got %d (%v)", counts[schema.EventCompletion], counts)
	}
	if counts[schema.EventToolStart] == 0 || counts[schema.EventToolEnd] == 0 {
		t.Fatalf("expected tool events from the leader: %v", counts)
	}
}

func TestDelegateOutsideTeamRunFails(t *testing.T) {
	tool := newDelegateTool()
	args, _ := json.Marshal(map[string]string{"member_id": "a", "task": "t"})
	result := tool.Execute(context.Background(), args)
	if result.Success {
		t.Fatal("delegation without team context should fail")
	}
	if !strings.Contains(result.Text(), "team run") {
		t.Fatalf("unexpected failure text: %q", result.Text())
	}
}
