package ralph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openomni/omni/agent"
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/schema"
)

// fileWritingTools are the tool names whose calls count as file
// modifications for idle detection.
var fileWritingTools = map[string]bool{
	"write_file": true,
	"edit_file":  true,
}

type iterationSummary struct {
	iteration int
	text      string
}

// Result is the outcome of a meta-loop run.
type Result struct {
	Content      string
	Iterations   int
	Reason       Condition
	Message      string
	TotalSteps   int
	WaitingInput bool
}

// Runner drives the meta-loop around one agent. Each iteration rebuilds
// the conversation from scratch; continuity lives in working memory, the
// result cache and iteration summaries.
type Runner struct {
	agent      *agent.Agent
	summarizer llm.Client
	cfg        Config
	memory     *WorkingMemory
	cache      *ResultCache
	detector   *Detector
	basePrompt string

	summaries  []iterationSummary
	condensed  string
	totalSteps int
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithSummarizer sets the model used for iteration and context summaries.
// Without one, summaries fall back to fixed text and truncation.
func WithSummarizer(client llm.Client) RunnerOption {
	return func(r *Runner) { r.summarizer = client }
}

// WithBasePrompt sets the system prompt the ralph section is appended to.
func WithBasePrompt(prompt string) RunnerOption {
	return func(r *Runner) { r.basePrompt = prompt }
}

// NewRunner wires the meta-loop around an agent.
func NewRunner(a *agent.Agent, cfg Config, opts ...RunnerOption) (*Runner, error) {
	memory, err := NewWorkingMemory(cfg.MemoryDir)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		agent:    a,
		cfg:      cfg,
		memory:   memory,
		cache:    NewResultCache(defaultCacheSize),
		detector: NewDetector(cfg),
	}
	for _, opt := range opts {
		opt(r)
	}
	a.SetToolResultHook(r.onToolResult)
	return r, nil
}

// Memory exposes the working memory.
func (r *Runner) Memory() *WorkingMemory { return r.memory }

// Cache exposes the tool result cache.
func (r *Runner) Cache() *ResultCache { return r.cache }

// Agent returns the wrapped agent, e.g. to answer a pending input request.
func (r *Runner) Agent() *agent.Agent { return r.agent }

// onToolResult harvests file modifications and caches every result.
func (r *Runner) onToolResult(call schema.ToolCall, result schema.ToolResult) {
	if fileWritingTools[call.Name] {
		var args struct {
			FilePath string `json:"file_path"`
			Path     string `json:"path"`
		}
		_ = json.Unmarshal(call.Args, &args)
		path := args.FilePath
		if path == "" {
			path = args.Path
		}
		r.memory.RecordFileModified(path)
	}

	content := result.Text()
	r.cache.Store(CachedResult{
		ToolCallID:  call.ID,
		ToolName:    call.Name,
		Arguments:   string(call.Args),
		Summary:     Summarize(content),
		FullContent: content,
		Iteration:   r.memory.Iteration(),
	})
}

// Run iterates the task until a completion condition fires. A pending
// user input request from the inner loop propagates out unchanged with
// WaitingInput set; answer it through Agent().ProvideInput and call
// Resume.
func (r *Runner) Run(ctx context.Context, task string) (*Result, error) {
	for {
		iteration := r.memory.IncrementIteration()
		r.memory.ClearIterationFiles()
		r.emit(schema.EventRalphIterationStart, map[string]any{
			"iteration":      iteration,
			"max_iterations": r.cfg.MaxIterations,
		})

		r.agent.SetSystemPrompt(r.buildSystemPrompt(task, iteration))
		if err := r.agent.ResetConversation(); err != nil {
			return nil, err
		}

		content, err := r.agent.Run(ctx, task)
		r.totalSteps += r.agent.State().CurrentStep
		if err != nil {
			return nil, err
		}

		result, done, err := r.finishIteration(ctx, task, iteration, content)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}
}

// Resume continues the meta-loop after a pending input request was
// answered.
func (r *Runner) Resume(ctx context.Context, task string, values map[string]any) (*Result, error) {
	iteration := r.memory.Iteration()
	stepsBefore := r.agent.State().CurrentStep
	content, err := r.agent.ProvideInput(ctx, values)
	r.totalSteps += r.agent.State().CurrentStep - stepsBefore
	if err != nil {
		return nil, err
	}

	result, done, err := r.finishIteration(ctx, task, iteration, content)
	if err != nil {
		return nil, err
	}
	if done {
		return result, nil
	}
	return r.Run(ctx, task)
}

func (r *Runner) finishIteration(ctx context.Context, task string, iteration int, content string) (*Result, bool, error) {
	if r.agent.State().Status == agent.StatusWaitingInput {
		return &Result{
			Content:      content,
			Iterations:   iteration,
			TotalSteps:   r.totalSteps,
			WaitingInput: true,
		}, true, nil
	}

	check := r.detector.Check(content, iteration, r.memory.FilesModified(), r.memory.ProgressCount())
	r.emit(schema.EventRalphIterationEnd, map[string]any{
		"iteration": iteration,
		"completed": check.Completed,
		"reason":    string(check.Reason),
	})

	if check.Completed {
		r.emit(schema.EventRalphCompletion, map[string]any{
			"iteration": iteration,
			"reason":    string(check.Reason),
			"message":   check.Message,
		})
		return &Result{
			Content:    content,
			Iterations: iteration,
			Reason:     check.Reason,
			Message:    check.Message,
			TotalSteps: r.totalSteps,
		}, true, nil
	}

	r.summarizeIteration(ctx, iteration)
	r.compactSummaries(ctx)
	return nil, false, nil
}

func (r *Runner) emit(t schema.EventType, data map[string]any) {
	r.agent.Events().Emit(schema.NewEvent(t, 0, data))
}

func (r *Runner) buildSystemPrompt(task string, iteration int) string {
	var b strings.Builder
	if r.basePrompt != "" {
		b.WriteString(r.basePrompt)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n## Ralph Mode (Iteration %d)\n\n", iteration)
	fmt.Fprintf(&b, "You are operating in iterative mode. Your task is:\n%s\n\n", task)
	b.WriteString("### Working Memory\n")
	b.WriteString(r.contextPrefix())
	b.WriteString("\n\n### Completion\n")
	fmt.Fprintf(&b, "When the task is fully done, output:\n<promise>%s</promise>\n\n", r.cfg.CompletionPromise)
	b.WriteString("### Guidelines\n")
	b.WriteString("- Review the working memory for context from previous iterations\n")
	b.WriteString("- Focus on making incremental progress each iteration\n")
	return b.String()
}

// contextPrefix assembles working memory, iteration summaries per the
// configured strategy, and recent tool result summaries.
func (r *Runner) contextPrefix() string {
	parts := []string{r.memory.ContextString()}

	summaries := r.selectSummaries()
	if r.condensed != "" {
		parts = append(parts, "\n## Earlier Iterations (Condensed)\n"+r.condensed)
	}
	if len(summaries) > 0 {
		parts = append(parts, "\n## Previous Iterations")
		for _, s := range summaries {
			parts = append(parts, fmt.Sprintf("\n### Iteration %d\n%s", s.iteration, s.text))
		}
	}

	if recent := r.cache.Recent(10); len(recent) > 0 {
		parts = append(parts, "\n## Recent Tool Results (Summaries)")
		for _, res := range recent {
			summary := res.Summary
			if len(summary) > 200 {
				summary = summary[:200] + "..."
			}
			parts = append(parts, fmt.Sprintf("\n- [%s] %s", res.ToolName, summary))
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Runner) selectSummaries() []iterationSummary {
	sorted := make([]iterationSummary, len(r.summaries))
	copy(sorted, r.summaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].iteration < sorted[j].iteration })

	switch r.cfg.Strategy {
	case ContextRecent, ContextSummarize:
		window := r.cfg.RecentWindow
		if window <= 0 {
			window = 3
		}
		if len(sorted) > window {
			sorted = sorted[len(sorted)-window:]
		}
	}
	return sorted
}

func (r *Runner) summarizeIteration(ctx context.Context, iteration int) {
	var b strings.Builder
	for _, m := range r.agent.State().Messages {
		if m.Content == "" {
			continue
		}
		content := m.Content
		if len(content) > 500 {
			content = content[:500]
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}

	text := fmt.Sprintf("Iteration %d completed. See working memory for details.", iteration)
	if r.summarizer != nil {
		transcript := b.String()
		if len(transcript) > 8000 {
			transcript = transcript[:8000]
		}
		prompt := fmt.Sprintf("Summarize iteration %d progress:\n%s", iteration, transcript)
		if resp, err := r.summarizer.Generate(ctx, llm.Request{
			Messages: []schema.Message{schema.UserMessage(prompt)},
		}); err == nil && resp.Content != "" {
			text = resp.Content
		}
	}
	r.summaries = append(r.summaries, iterationSummary{iteration: iteration, text: text})
}

// compactSummaries folds older iteration summaries once the estimated
// token count passes the threshold. Only the summarize strategy compacts.
func (r *Runner) compactSummaries(ctx context.Context) {
	if r.cfg.Strategy != ContextSummarize {
		return
	}
	total := len(r.condensed)
	for _, s := range r.summaries {
		total += len(s.text)
	}
	// Rough estimate: four characters per token.
	if total/4 < r.cfg.SummarizeTokenThreshold {
		return
	}

	window := r.cfg.RecentWindow
	if window <= 0 {
		window = 3
	}
	if len(r.summaries) <= window {
		return
	}

	older := r.summaries[:len(r.summaries)-window]
	var b strings.Builder
	if r.condensed != "" {
		b.WriteString(r.condensed)
		b.WriteString("\n")
	}
	for _, s := range older {
		fmt.Fprintf(&b, "Iteration %d: %s\n", s.iteration, s.text)
	}
	folded := b.String()

	if r.summarizer != nil {
		prompt := "Condense this iteration history, keeping decisions and open items:\n" + folded
		if resp, err := r.summarizer.Generate(ctx, llm.Request{
			Messages: []schema.Message{schema.UserMessage(prompt)},
		}); err == nil && resp.Content != "" {
			folded = resp.Content
		}
	}
	if len(folded) > 4000 {
		folded = folded[:4000]
	}

	r.condensed = folded
	r.summaries = r.summaries[len(r.summaries)-window:]
}
