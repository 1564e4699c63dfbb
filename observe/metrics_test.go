package observe

import (
	"sync"
	"testing"

	"github.com/openomni/omni/schema"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.Record(schema.NewEvent(schema.EventStepStart, 1, nil))
	m.Record(schema.NewEvent(schema.EventStepStart, 2, nil))
	m.Record(schema.NewEvent(schema.EventLLMResponse, 2, map[string]any{
		"input_tokens":  120,
		"output_tokens": 45,
	}))
	m.Record(schema.NewEvent(schema.EventToolEnd, 2, nil))
	m.Record(schema.NewEvent(schema.EventError, 2, nil))
	// Unknown payload shapes are ignored, not counted.
	m.Record(schema.NewEvent(schema.EventLLMResponse, 3, map[string]any{
		"input_tokens": "not a number",
	}))

	got := m.Read()
	want := Snapshot{Steps: 2, LLMCalls: 2, ToolCalls: 1, Errors: 1, InputTokens: 120, OutputTokens: 45}
	if got != want {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(schema.NewEvent(schema.EventStepStart, j, nil))
			}
		}()
	}
	wg.Wait()

	if got := m.Read().Steps; got != 5000 {
		t.Fatalf("lost increments: %d", got)
	}
}
