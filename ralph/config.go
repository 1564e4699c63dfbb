// Package ralph implements the iterative meta-loop: the same task runs
// through the agent repeatedly, with working memory and cached tool
// results carrying progress across iterations, until a completion
// condition fires.
package ralph

import "regexp"

// ContextStrategy controls how prior-iteration context is injected into
// each new iteration's system prompt.
type ContextStrategy string

const (
	// ContextAll injects every iteration summary.
	ContextAll ContextStrategy = "all"
	// ContextRecent injects only the last RecentWindow summaries.
	ContextRecent ContextStrategy = "recent"
	// ContextSummarize folds older summaries through the model once the
	// estimated token count passes SummarizeTokenThreshold.
	ContextSummarize ContextStrategy = "summarize"
)

// Condition names a completion condition.
type Condition string

const (
	ConditionPromiseTag    Condition = "promise_tag"
	ConditionMaxIterations Condition = "max_iterations"
	ConditionIdleThreshold Condition = "idle_threshold"
)

// promisePattern extracts the completion promise from assistant output.
var promisePattern = regexp.MustCompile(`(?is)<promise>(.*?)</promise>`)

// Config tunes the meta-loop.
type Config struct {
	MaxIterations           int
	CompletionPromise       string
	IdleThreshold           int
	Strategy                ContextStrategy
	RecentWindow            int
	SummarizeTokenThreshold int
	Conditions              []Condition
	MemoryDir               string
}

// DefaultConfig mirrors the runtime defaults: 20 iterations, the
// "TASK COMPLETE" promise, idle cutoff after 3 unchanged iterations.
func DefaultConfig() Config {
	return Config{
		MaxIterations:           20,
		CompletionPromise:       "TASK COMPLETE",
		IdleThreshold:           3,
		Strategy:                ContextAll,
		RecentWindow:            3,
		SummarizeTokenThreshold: 50000,
		Conditions: []Condition{
			ConditionPromiseTag,
			ConditionMaxIterations,
			ConditionIdleThreshold,
		},
	}
}

func (c Config) hasCondition(cond Condition) bool {
	for _, have := range c.Conditions {
		if have == cond {
			return true
		}
	}
	return false
}
