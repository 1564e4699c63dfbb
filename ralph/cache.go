package ralph

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheSize = 100
	summaryThreshold = 500
)

// CachedResult is one stored tool result: a short summary for prompt
// injection plus the full content for on-demand retrieval.
type CachedResult struct {
	ToolCallID  string    `json:"tool_call_id"`
	ToolName    string    `json:"tool_name"`
	Arguments   string    `json:"arguments"`
	Summary     string    `json:"summary"`
	FullContent string    `json:"full_content"`
	Iteration   int       `json:"iteration"`
	StoredAt    time.Time `json:"stored_at"`
}

// ResultCache is an LRU cache of tool results keyed by call id. Oldest
// entries fall out once the capacity is reached.
type ResultCache struct {
	mu      sync.Mutex
	cap     int
	order   []string
	entries map[string]*CachedResult
}

// NewResultCache creates a cache; size <= 0 uses the default capacity.
func NewResultCache(size int) *ResultCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &ResultCache{cap: size, entries: make(map[string]*CachedResult)}
}

// Store inserts a result, evicting the oldest entry when full.
func (c *ResultCache) Store(result CachedResult) {
	if result.ToolCallID == "" {
		return
	}
	result.StoredAt = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[result.ToolCallID]; exists {
		c.touch(result.ToolCallID)
		c.entries[result.ToolCallID] = &result
		return
	}
	for len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, result.ToolCallID)
	c.entries[result.ToolCallID] = &result
}

func (c *ResultCache) touch(id string) {
	for i, have := range c.order {
		if have == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, id)
			return
		}
	}
}

// Summary returns the stored summary for a call id.
func (c *ResultCache) Summary(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.Summary, true
	}
	return "", false
}

// FullContent returns the full stored content for a call id.
func (c *ResultCache) FullContent(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.FullContent, true
	}
	return "", false
}

// ByToolName returns all cached results for one tool, oldest first.
func (c *ResultCache) ByToolName(name string) []CachedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CachedResult
	for _, id := range c.order {
		if e := c.entries[id]; e.ToolName == name {
			out = append(out, *e)
		}
	}
	return out
}

// Recent returns the newest n entries, oldest first.
func (c *ResultCache) Recent(n int) []CachedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := len(c.order) - n
	if start < 0 {
		start = 0
	}
	out := make([]CachedResult, 0, len(c.order)-start)
	for _, id := range c.order[start:] {
		out = append(out, *c.entries[id])
	}
	return out
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Clear drops everything.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.entries = make(map[string]*CachedResult)
}

// Summarize shortens a tool result for prompt injection. Content at or
// under the threshold passes through untouched.
func Summarize(content string) string {
	if len(content) <= summaryThreshold {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 20 {
		preview := strings.Join(lines[:10], "\n")
		return fmt.Sprintf("%s\n... (%d more lines)", preview, len(lines)-10)
	}
	if len(content) > 1000 {
		return fmt.Sprintf("%s... (%d more chars)", content[:500], len(content)-500)
	}
	return content
}
