package ralph

import (
	"fmt"
	"strings"
)

// CompletionResult is the outcome of one completion check.
type CompletionResult struct {
	Completed bool
	Reason    Condition
	Message   string
}

// Detector decides when the meta-loop is done. Conditions check in a
// fixed order: promise tag, max iterations, idle threshold.
type Detector struct {
	cfg          Config
	idleCount    int
	lastFiles    map[string]bool
	lastProgress int
}

// NewDetector creates a detector for the given config.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, lastFiles: make(map[string]bool)}
}

// Check evaluates the conditions after one iteration. An iteration counts
// as idle when the modified-file set is unchanged and no progress note was
// appended.
func (d *Detector) Check(content string, iteration int, files map[string]bool, progressCount int) CompletionResult {
	if d.cfg.hasCondition(ConditionPromiseTag) {
		if match := promisePattern.FindStringSubmatch(content); match != nil {
			promise := strings.TrimSpace(match[1])
			if strings.Contains(strings.ToLower(promise), strings.ToLower(d.cfg.CompletionPromise)) {
				return CompletionResult{
					Completed: true,
					Reason:    ConditionPromiseTag,
					Message:   "completion promise detected: " + promise,
				}
			}
		}
	}

	if d.cfg.hasCondition(ConditionMaxIterations) && iteration >= d.cfg.MaxIterations {
		return CompletionResult{
			Completed: true,
			Reason:    ConditionMaxIterations,
			Message:   fmt.Sprintf("max iterations (%d) reached", d.cfg.MaxIterations),
		}
	}

	if d.cfg.hasCondition(ConditionIdleThreshold) {
		progressed := progressCount > d.lastProgress
		if sameFiles(files, d.lastFiles) && !progressed {
			d.idleCount++
		} else {
			d.idleCount = 0
			d.lastFiles = copySet(files)
		}
		d.lastProgress = progressCount

		if d.idleCount >= d.cfg.IdleThreshold {
			return CompletionResult{
				Completed: true,
				Reason:    ConditionIdleThreshold,
				Message:   fmt.Sprintf("no progress for %d iterations", d.idleCount),
			}
		}
	}

	return CompletionResult{}
}

// Reset clears the idle tracking.
func (d *Detector) Reset() {
	d.idleCount = 0
	d.lastFiles = make(map[string]bool)
	d.lastProgress = 0
}

func sameFiles(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func copySet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}
