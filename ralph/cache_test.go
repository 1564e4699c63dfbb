package ralph

import (
	"fmt"
	"strings"
	"testing"
)

func TestCacheLRUEviction(t *testing.T) {
	c := NewResultCache(3)
	for i := 0; i < 5; i++ {
		c.Store(CachedResult{ToolCallID: fmt.Sprintf("c%d", i), ToolName: "echo"})
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	if _, ok := c.Summary("c0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Summary("c4"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCacheFullContentRetrieval(t *testing.T) {
	c := NewResultCache(10)
	c.Store(CachedResult{ToolCallID: "c1", ToolName: "read_file", Summary: "short", FullContent: "the whole thing"})

	full, ok := c.FullContent("c1")
	if !ok || full != "the whole thing" {
		t.Fatalf("full content wrong: %q %v", full, ok)
	}
	byName := c.ByToolName("read_file")
	if len(byName) != 1 || byName[0].ToolCallID != "c1" {
		t.Fatalf("lookup by tool name wrong: %+v", byName)
	}
}

func TestSummarizePassthroughWhenShort(t *testing.T) {
	content := "short result"
	if got := Summarize(content); got != content {
		t.Fatalf("short content must pass through, got %q", got)
	}
}

func TestSummarizeTruncatesLongLineOutput(t *testing.T) {
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d with some padding to cross the threshold", i)
	}
	got := Summarize(strings.Join(lines, "\n"))
	if !strings.Contains(got, "more lines)") {
		t.Fatalf("line-based truncation missing: %q", got)
	}
	if !strings.HasPrefix(got, "line 0") {
		t.Fatalf("preview missing: %q", got)
	}
}

func TestSummarizeTruncatesLongSingleLine(t *testing.T) {
	got := Summarize(strings.Repeat("x", 2000))
	if len(got) >= 2000 || !strings.Contains(got, "more chars)") {
		t.Fatalf("char-based truncation missing: %d chars", len(got))
	}
}
