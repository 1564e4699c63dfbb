package ralph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Todo is one tracked task in working memory.
type Todo struct {
	Task      string `json:"task"`
	Completed bool   `json:"completed"`
}

// Decision records a choice and its reason.
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// ErrorNote records a failure worth revisiting.
type ErrorNote struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}

// WorkingMemory carries progress, findings and file modifications across
// iterations. With a directory set it persists to <dir>/memory.json after
// every mutation so an interrupted run can pick up where it left off.
type WorkingMemory struct {
	mu        sync.Mutex
	dir       string
	iteration int

	filesModified map[string]bool
	progress      []string
	findings      []string
	todos         []Todo
	decisions     []Decision
	errors        []ErrorNote
}

type memorySnapshot struct {
	Iteration     int         `json:"iteration"`
	FilesModified []string    `json:"files_modified"`
	Progress      []string    `json:"progress"`
	Findings      []string    `json:"findings"`
	Todos         []Todo      `json:"todos"`
	Decisions     []Decision  `json:"decisions"`
	Errors        []ErrorNote `json:"errors"`
}

// NewWorkingMemory creates a memory. An empty dir disables persistence.
func NewWorkingMemory(dir string) (*WorkingMemory, error) {
	m := &WorkingMemory{dir: dir, filesModified: make(map[string]bool)}
	if dir == "" {
		return m, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WorkingMemory) file() string { return filepath.Join(m.dir, "memory.json") }

func (m *WorkingMemory) load() error {
	data, err := os.ReadFile(m.file())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load working memory: %w", err)
	}
	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode working memory: %w", err)
	}
	m.iteration = snap.Iteration
	m.progress = snap.Progress
	m.findings = snap.Findings
	m.todos = snap.Todos
	m.decisions = snap.Decisions
	m.errors = snap.Errors
	for _, f := range snap.FilesModified {
		m.filesModified[f] = true
	}
	return nil
}

// save persists under the held lock. Write failures are dropped; memory
// stays authoritative in process.
func (m *WorkingMemory) save() {
	if m.dir == "" {
		return
	}
	files := make([]string, 0, len(m.filesModified))
	for f := range m.filesModified {
		files = append(files, f)
	}
	sort.Strings(files)
	snap := memorySnapshot{
		Iteration:     m.iteration,
		FilesModified: files,
		Progress:      m.progress,
		Findings:      m.findings,
		Todos:         m.todos,
		Decisions:     m.decisions,
		Errors:        m.errors,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	tmp := m.file() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, m.file())
}

// IncrementIteration advances and returns the iteration counter.
func (m *WorkingMemory) IncrementIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration++
	m.save()
	return m.iteration
}

// Iteration returns the current iteration number.
func (m *WorkingMemory) Iteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iteration
}

// RecordFileModified marks a file as touched in this iteration.
func (m *WorkingMemory) RecordFileModified(path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesModified[path] = true
	m.save()
}

// FilesModified returns a copy of this iteration's modified file set.
func (m *WorkingMemory) FilesModified() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.filesModified))
	for f := range m.filesModified {
		out[f] = true
	}
	return out
}

// ClearIterationFiles resets the per-iteration file set.
func (m *WorkingMemory) ClearIterationFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesModified = make(map[string]bool)
	m.save()
}

// AddProgress appends a progress note.
func (m *WorkingMemory) AddProgress(note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, note)
	m.save()
}

// ProgressCount returns the number of progress notes.
func (m *WorkingMemory) ProgressCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.progress)
}

// AddFinding appends a finding.
func (m *WorkingMemory) AddFinding(finding string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, finding)
	m.save()
}

// AddTodo tracks a pending task and returns its index.
func (m *WorkingMemory) AddTodo(task string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todos = append(m.todos, Todo{Task: task})
	m.save()
	return len(m.todos) - 1
}

// CompleteTodo marks the todo at index done.
func (m *WorkingMemory) CompleteTodo(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.todos) {
		return false
	}
	m.todos[index].Completed = true
	m.save()
	return true
}

// AddDecision records a decision with its reason.
func (m *WorkingMemory) AddDecision(decision, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, Decision{Decision: decision, Reason: reason})
	m.save()
}

// AddError records a failure note.
func (m *WorkingMemory) AddError(errMsg, context string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, ErrorNote{Error: errMsg, Context: context})
	m.save()
}

// ContextString renders the memory as the markdown block injected into
// each iteration's system prompt.
func (m *WorkingMemory) ContextString() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, completed := 0, 0
	for _, t := range m.todos {
		if t.Completed {
			completed++
		} else {
			pending++
		}
	}

	out := fmt.Sprintf("## Working Memory (Iteration %d)\n\nFiles Modified: %d\nPending Tasks: %d\nCompleted Tasks: %d",
		m.iteration, len(m.filesModified), pending, completed)

	if len(m.progress) > 0 {
		out += "\n\n### Recent Progress"
		for _, p := range tail(m.progress, 5) {
			out += "\n- " + p
		}
	}
	if len(m.findings) > 0 {
		out += "\n\n### Key Findings"
		for _, f := range tail(m.findings, 5) {
			out += "\n- " + f
		}
	}
	if pending > 0 {
		out += "\n\n### Pending Tasks"
		for _, t := range m.todos {
			if !t.Completed {
				out += "\n- [ ] " + t.Task
			}
		}
	}
	if len(m.errors) > 0 {
		out += "\n\n### Errors to Address"
		for _, e := range m.errors {
			out += "\n- " + e.Error
		}
	}
	return out
}

// Clear wipes the memory and removes the persisted file.
func (m *WorkingMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration = 0
	m.filesModified = make(map[string]bool)
	m.progress = nil
	m.findings = nil
	m.todos = nil
	m.decisions = nil
	m.errors = nil
	if m.dir != "" {
		_ = os.Remove(m.file())
	}
}

func tail(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
