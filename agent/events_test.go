package agent

import (
	"testing"

	"github.com/openomni/omni/schema"
)

func TestEmitterOrdering(t *testing.T) {
	e := NewEmitter()
	var order []string

	e.On(schema.EventStepStart, func(ev schema.Event) { order = append(order, "typed1") })
	e.OnAny(func(ev schema.Event) { order = append(order, "wild1") })
	e.On(schema.EventStepStart, func(ev schema.Event) { order = append(order, "typed2") })
	e.OnAny(func(ev schema.Event) { order = append(order, "wild2") })

	e.Emit(schema.NewEvent(schema.EventStepStart, 1, nil))

	want := []string{"wild1", "wild2", "typed1", "typed2"}
	if len(order) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order wrong: got %v want %v", order, want)
		}
	}
}

func TestEmitterTypeFiltering(t *testing.T) {
	e := NewEmitter()
	var got []schema.EventType

	e.On(schema.EventToolStart, func(ev schema.Event) { got = append(got, ev.Type) })
	e.Emit(schema.NewEvent(schema.EventStepStart, 1, nil))
	e.Emit(schema.NewEvent(schema.EventToolStart, 1, nil))

	if len(got) != 1 || got[0] != schema.EventToolStart {
		t.Fatalf("type filter broken: %v", got)
	}
}

func TestEmitterSurvivesPanickingHandler(t *testing.T) {
	e := NewEmitter()
	var called bool

	e.OnAny(func(ev schema.Event) { panic("bad subscriber") })
	e.OnAny(func(ev schema.Event) { called = true })

	e.Emit(schema.NewEvent(schema.EventCompletion, 1, nil))
	if !called {
		t.Fatal("panicking handler must not block later handlers")
	}
}
