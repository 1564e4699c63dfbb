// Package graph implements a typed state graph: named nodes write partial
// updates into declared channels, edges (static or conditional) route
// execution, and each level of ready nodes runs concurrently against the
// same state snapshot.
package graph

import (
	"context"
	"fmt"
	"sort"
)

// Sentinel node names. START is the virtual entry, END the virtual sink.
const (
	START = "__start__"
	END   = "__end__"
)

// State is the graph's shared record, keyed by declared channel names.
type State map[string]any

// Clone copies the top-level map. Values are shared; nodes must treat
// incoming state as read-only.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Reducer merges a new write into a channel's current value. Reducers must
// be associative; within a level writes fold in node name order.
type Reducer func(current, update any) any

// AppendReducer concatenates list-valued writes. Scalars are treated as
// single-element lists.
func AppendReducer(current, update any) any {
	return append(toList(current), toList(update)...)
}

func toList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// NodeFunc executes one node. It receives a snapshot of the state and
// returns a partial update naming only declared channels.
type NodeFunc func(ctx context.Context, s State) (State, error)

// Router picks the next node after a conditional edge. The returned key is
// looked up in the edge's path map when one was given, otherwise it is the
// target node name itself.
type Router func(s State) string

// ValidationError reports a structurally invalid graph.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph validation: %s: %s", e.Field, e.Reason)
}

// ChannelConflict is raised when two nodes in the same level write a
// channel that has no reducer.
type ChannelConflict struct {
	Channel string
	Nodes   []string
}

func (e *ChannelConflict) Error() string {
	return fmt.Sprintf("channel conflict: %q written by %v in the same step without a reducer", e.Channel, e.Nodes)
}

type conditionalEdge struct {
	router  Router
	pathMap map[string]string
}

// Graph is the mutable builder. Compile freezes it into a runnable form.
type Graph struct {
	channels    map[string]Reducer
	hasChannel  map[string]bool
	nodes       map[string]NodeFunc
	edges       map[string][]string
	conditional map[string][]conditionalEdge
	err         error
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		channels:    make(map[string]Reducer),
		hasChannel:  make(map[string]bool),
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string][]string),
		conditional: make(map[string][]conditionalEdge),
	}
}

func (g *Graph) fail(field, reason string) *Graph {
	if g.err == nil {
		g.err = &ValidationError{Field: field, Reason: reason}
	}
	return g
}

// AddChannel declares a state channel, optionally with a reducer.
func (g *Graph) AddChannel(name string, reducer ...Reducer) *Graph {
	if name == "" {
		return g.fail("channel", "empty name")
	}
	if g.hasChannel[name] {
		return g.fail("channel", fmt.Sprintf("%q declared twice", name))
	}
	g.hasChannel[name] = true
	if len(reducer) > 0 {
		g.channels[name] = reducer[0]
	} else {
		g.channels[name] = nil
	}
	return g
}

// AddNode registers a node.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	if name == "" || name == START || name == END {
		return g.fail("node", fmt.Sprintf("invalid node name %q", name))
	}
	if fn == nil {
		return g.fail("node", fmt.Sprintf("%q has no function", name))
	}
	if _, exists := g.nodes[name]; exists {
		return g.fail("node", fmt.Sprintf("%q registered twice", name))
	}
	g.nodes[name] = fn
	return g
}

// AddEdge connects from to to. START may appear as source, END as target.
func (g *Graph) AddEdge(from, to string) *Graph {
	if from == END {
		return g.fail("edge", "END cannot have outgoing edges")
	}
	if to == START {
		return g.fail("edge", "START cannot have incoming edges")
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdges attaches a router to from. When pathMap is non-nil
// the router's result is translated through it.
func (g *Graph) AddConditionalEdges(from string, router Router, pathMap map[string]string) *Graph {
	if from == END {
		return g.fail("edge", "END cannot have outgoing edges")
	}
	if router == nil {
		return g.fail("edge", fmt.Sprintf("conditional edge from %q has no router", from))
	}
	g.conditional[from] = append(g.conditional[from], conditionalEdge{router: router, pathMap: pathMap})
	return g
}

// Compile validates the graph and freezes it.
func (g *Graph) Compile() (*Compiled, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.nodes) == 0 {
		return nil, &ValidationError{Field: "nodes", Reason: "graph has no nodes"}
	}
	if len(g.edges[START])+len(g.conditional[START]) == 0 {
		return nil, &ValidationError{Field: "entry", Reason: "START has no outgoing edges"}
	}

	// Every edge endpoint must be a known node or a sentinel.
	check := func(name, kind string) error {
		if name == START || name == END {
			return nil
		}
		if _, ok := g.nodes[name]; !ok {
			return &ValidationError{Field: kind, Reason: fmt.Sprintf("references unknown node %q", name)}
		}
		return nil
	}
	for from, tos := range g.edges {
		if err := check(from, "edge source"); err != nil {
			return nil, err
		}
		for _, to := range tos {
			if err := check(to, "edge target"); err != nil {
				return nil, err
			}
		}
	}
	for from, edges := range g.conditional {
		if err := check(from, "conditional edge source"); err != nil {
			return nil, err
		}
		for _, e := range edges {
			for _, to := range e.pathMap {
				if err := check(to, "conditional edge target"); err != nil {
					return nil, err
				}
			}
		}
	}

	// Every node must be reachable from START over static edges and
	// conditional path maps.
	reachable := map[string]bool{START: true}
	queue := []string{START}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		var nexts []string
		nexts = append(nexts, g.edges[cur]...)
		for _, e := range g.conditional[cur] {
			for _, to := range e.pathMap {
				nexts = append(nexts, to)
			}
			if e.pathMap == nil {
				// Router targets are unknown statically; assume any node.
				for name := range g.nodes {
					nexts = append(nexts, name)
				}
			}
		}
		for _, n := range nexts {
			if !reachable[n] {
				reachable[n] = true
				queue = append(queue, n)
			}
		}
	}
	var unreachable []string
	for name := range g.nodes {
		if !reachable[name] {
			unreachable = append(unreachable, name)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return nil, &ValidationError{Field: "nodes", Reason: fmt.Sprintf("unreachable from START: %v", unreachable)}
	}

	return &Compiled{graph: g}, nil
}
