package ralph

import (
	"strings"
	"testing"
)

func TestWorkingMemoryContextString(t *testing.T) {
	m, err := NewWorkingMemory("")
	if err != nil {
		t.Fatal(err)
	}
	m.IncrementIteration()
	m.RecordFileModified("cmd/main.go")
	m.AddProgress("implemented the parser")
	m.AddFinding("config file is TOML, not YAML")
	idx := m.AddTodo("write tests")
	m.AddTodo("update docs")
	m.CompleteTodo(idx)
	m.AddError("build failed on linux", "missing header")

	out := m.ContextString()
	for _, want := range []string{
		"Working Memory (Iteration 1)",
		"Files Modified: 1",
		"Pending Tasks: 1",
		"Completed Tasks: 1",
		"implemented the parser",
		"config file is TOML, not YAML",
		"- [ ] update docs",
		"build failed on linux",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("context string missing %q:\n%s", want, out)
		}
	}
}

func TestWorkingMemoryIterationFileClear(t *testing.T) {
	m, _ := NewWorkingMemory("")
	m.RecordFileModified("a.go")
	if len(m.FilesModified()) != 1 {
		t.Fatal("file not recorded")
	}
	m.ClearIterationFiles()
	if len(m.FilesModified()) != 0 {
		t.Fatal("iteration files not cleared")
	}
}

func TestWorkingMemoryPersistence(t *testing.T) {
	dir := t.TempDir()

	m, err := NewWorkingMemory(dir)
	if err != nil {
		t.Fatal(err)
	}
	m.IncrementIteration()
	m.AddProgress("step one done")
	m.RecordFileModified("x.go")

	reloaded, err := NewWorkingMemory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Iteration() != 1 {
		t.Fatalf("iteration not persisted: %d", reloaded.Iteration())
	}
	if reloaded.ProgressCount() != 1 {
		t.Fatalf("progress not persisted: %d", reloaded.ProgressCount())
	}
	if !reloaded.FilesModified()["x.go"] {
		t.Fatal("file set not persisted")
	}

	reloaded.Clear()
	fresh, err := NewWorkingMemory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Iteration() != 0 || fresh.ProgressCount() != 0 {
		t.Fatal("clear did not remove persisted state")
	}
}
