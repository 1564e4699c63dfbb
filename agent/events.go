package agent

import (
	"sync"

	"github.com/openomni/omni/schema"
)

// Handler consumes one event. Handlers run synchronously on the emitting
// goroutine; a slow handler stalls the emitter.
type Handler func(schema.Event)

// Emitter fans events out to subscribers. Delivery order per event:
// wildcard handlers first, then handlers for the event's type, each in
// registration order.
type Emitter struct {
	mu       sync.RWMutex
	wildcard []Handler
	typed    map[schema.EventType][]Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{typed: make(map[schema.EventType][]Handler)}
}

// On subscribes to one event type.
func (e *Emitter) On(t schema.EventType, h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.typed[t] = append(e.typed[t], h)
	e.mu.Unlock()
}

// OnAny subscribes to every event.
func (e *Emitter) OnAny(h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.wildcard = append(e.wildcard, h)
	e.mu.Unlock()
}

// Emit delivers ev to all matching handlers. Handler panics are swallowed
// so one bad subscriber cannot kill the run.
func (e *Emitter) Emit(ev schema.Event) {
	e.mu.RLock()
	wildcard := make([]Handler, len(e.wildcard))
	copy(wildcard, e.wildcard)
	typed := make([]Handler, len(e.typed[ev.Type]))
	copy(typed, e.typed[ev.Type])
	e.mu.RUnlock()

	for _, h := range wildcard {
		call(h, ev)
	}
	for _, h := range typed {
		call(h, ev)
	}
}

func call(h Handler, ev schema.Event) {
	defer func() { _ = recover() }()
	h(ev)
}
