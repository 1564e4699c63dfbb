package ralph

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/openomni/omni/agent"
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/schema"
	"github.com/openomni/omni/tools"
)

// scriptedModel returns one scripted response per call, repeating the
// last entry when the script runs out.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     int
}

func (m *scriptedModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return m.responses[i], nil
}

func (m *scriptedModel) Model() string { return "scripted" }

func text(content string) *llm.Response {
	return &llm.Response{Content: content, FinishReason: "stop"}
}

func writeFileTool() tools.Tool {
	return tools.NewFuncTool("write_file", "Write a file",
		tools.ObjectSchema(map[string]any{
			"file_path": tools.StringProp("Path to write"),
			"content":   tools.StringProp("File content"),
		}, "file_path"),
		func(ctx context.Context, args json.RawMessage) (string, error) {
			return "written", nil
		})
}

func TestRunCompletesOnPromise(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		text("Making progress on the task."),
		text("All done.\n<promise>TASK COMPLETE</promise>"),
	}}
	a := agent.New(model, agent.WithMaxSteps(5))
	r, err := NewRunner(a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(context.Background(), "build the thing")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ConditionPromiseTag {
		t.Fatalf("expected promise completion, got %+v", res)
	}
	if res.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", res.Iterations)
	}
	if !strings.Contains(res.Content, "TASK COMPLETE") {
		t.Fatalf("final content lost: %q", res.Content)
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{text("still going, never promising")}}
	a := agent.New(model, agent.WithMaxSteps(5))

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	// Keep idle detection out of the way for this test.
	cfg.Conditions = []Condition{ConditionPromiseTag, ConditionMaxIterations}
	r, err := NewRunner(a, cfg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(context.Background(), "endless task")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ConditionMaxIterations || res.Iterations != 3 {
		t.Fatalf("expected max iteration stop at 3, got %+v", res)
	}
}

func TestRunStopsWhenIdle(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{text("thinking, not writing files")}}
	a := agent.New(model, agent.WithMaxSteps(5))

	cfg := DefaultConfig()
	cfg.IdleThreshold = 2
	cfg.MaxIterations = 50
	r, err := NewRunner(a, cfg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ConditionIdleThreshold {
		t.Fatalf("expected idle stop, got %+v", res)
	}
}

func TestFileModificationTracking(t *testing.T) {
	reg, err := tools.NewRegistry(writeFileTool())
	if err != nil {
		t.Fatal(err)
	}
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []schema.ToolCall{{
			ID:   "c1",
			Name: "write_file",
			Args: json.RawMessage(`{"file_path":"out/report.md","content":"hi"}`),
		}}},
		text("wrote the report\n<promise>TASK COMPLETE</promise>"),
	}}
	a := agent.New(model, agent.WithMaxSteps(5), agent.WithRegistry(reg))
	r, err := NewRunner(a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(context.Background(), "write a report"); err != nil {
		t.Fatal(err)
	}
	if !r.Memory().FilesModified()["out/report.md"] {
		t.Fatalf("file modification not tracked: %v", r.Memory().FilesModified())
	}
	if _, ok := r.Cache().Summary("c1"); !ok {
		t.Fatal("tool result not cached")
	}
}

func TestIterationContextInjectedIntoPrompt(t *testing.T) {
	var prompts []string
	model := &scriptedModel{responses: []*llm.Response{
		text("iteration one output"),
		text("<promise>TASK COMPLETE</promise>"),
	}}
	recorder := &recordingModel{inner: model, prompts: &prompts}
	a := agent.New(recorder, agent.WithMaxSteps(5))
	r, err := NewRunner(a, DefaultConfig(), WithBasePrompt("You are a builder."))
	if err != nil {
		t.Fatal(err)
	}
	r.Memory().AddProgress("scaffolding done")

	if _, err := r.Run(context.Background(), "finish the build"); err != nil {
		t.Fatal(err)
	}

	if len(prompts) < 2 {
		t.Fatalf("expected 2 llm calls, got %d", len(prompts))
	}
	first := prompts[0]
	for _, want := range []string{"You are a builder.", "Ralph Mode (Iteration 1)", "finish the build", "scaffolding done", "<promise>TASK COMPLETE</promise>"} {
		if !strings.Contains(first, want) {
			t.Fatalf("first prompt missing %q:\n%s", want, first)
		}
	}
	if !strings.Contains(prompts[1], "Ralph Mode (Iteration 2)") {
		t.Fatal("second iteration prompt not rebuilt")
	}
	if !strings.Contains(prompts[1], "Previous Iterations") {
		t.Fatal("iteration summary not injected into second prompt")
	}
}

// recordingModel captures the system prompt of every request.
type recordingModel struct {
	inner   llm.Client
	prompts *[]string
}

func (m *recordingModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if len(req.Messages) > 0 && req.Messages[0].Role == schema.RoleSystem {
		*m.prompts = append(*m.prompts, req.Messages[0].Content)
	}
	return m.inner.Generate(ctx, req)
}

func (m *recordingModel) Model() string { return m.inner.Model() }

func TestWaitingInputPropagates(t *testing.T) {
	reg, err := tools.NewRegistry(tools.NewUserInputTool())
	if err != nil {
		t.Fatal(err)
	}
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []schema.ToolCall{{
			ID:   "c1",
			Name: tools.UserInputToolName,
			Args: json.RawMessage(`{"fields":[{"field_name":"target","field_description":"Deploy where?"}]}`),
		}}},
		text("deployed\n<promise>TASK COMPLETE</promise>"),
	}}
	a := agent.New(model, agent.WithMaxSteps(5), agent.WithRegistry(reg))
	r, err := NewRunner(a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(context.Background(), "deploy it")
	if err != nil {
		t.Fatal(err)
	}
	if !res.WaitingInput {
		t.Fatalf("expected waiting input, got %+v", res)
	}
	if a.State().Status != agent.StatusWaitingInput {
		t.Fatalf("agent status wrong: %s", a.State().Status)
	}

	final, err := r.Resume(context.Background(), "deploy it", map[string]any{"target": "staging"})
	if err != nil {
		t.Fatal(err)
	}
	if final.WaitingInput || final.Reason != ConditionPromiseTag {
		t.Fatalf("resume did not finish the run: %+v", final)
	}
}
