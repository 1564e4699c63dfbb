package observe

import (
	"sync/atomic"

	"github.com/openomni/omni/schema"
)

// Metrics counts runtime events. Subscribe its Record method to an event
// emitter; counters are safe for concurrent use.
type Metrics struct {
	steps     atomic.Int64
	llmCalls  atomic.Int64
	toolCalls atomic.Int64
	errors    atomic.Int64
	inTokens  atomic.Int64
	outTokens atomic.Int64
}

// NewMetrics creates a zeroed metrics collector.
func NewMetrics() *Metrics { return &Metrics{} }

// Record consumes one event.
func (m *Metrics) Record(ev schema.Event) {
	switch ev.Type {
	case schema.EventStepStart:
		m.steps.Add(1)
	case schema.EventLLMResponse:
		m.llmCalls.Add(1)
		if n, ok := ev.Data["input_tokens"].(int); ok {
			m.inTokens.Add(int64(n))
		}
		if n, ok := ev.Data["output_tokens"].(int); ok {
			m.outTokens.Add(int64(n))
		}
	case schema.EventToolEnd:
		m.toolCalls.Add(1)
	case schema.EventError:
		m.errors.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Steps        int64 `json:"steps"`
	LLMCalls     int64 `json:"llm_calls"`
	ToolCalls    int64 `json:"tool_calls"`
	Errors       int64 `json:"errors"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Read returns the current counter values.
func (m *Metrics) Read() Snapshot {
	return Snapshot{
		Steps:        m.steps.Load(),
		LLMCalls:     m.llmCalls.Load(),
		ToolCalls:    m.toolCalls.Load(),
		Errors:       m.errors.Load(),
		InputTokens:  m.inTokens.Load(),
		OutputTokens: m.outTokens.Load(),
	}
}
