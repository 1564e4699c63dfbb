package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// maxLevels caps frontier expansion so a miswired graph cannot spin
// forever.
const maxLevels = 100

// StepEventType classifies streamed execution events.
type StepEventType string

const (
	StepNodeStart StepEventType = "node_start"
	StepNodeEnd   StepEventType = "node_end"
	StepDone      StepEventType = "done"
)

// StepEvent is one streamed execution event. Update carries the node's
// partial write on node_end; State carries the merged state on node_start
// and done.
type StepEvent struct {
	Type   StepEventType
	Node   string
	Update State
	State  State
}

// Compiled is a validated, immutable graph ready to run.
type Compiled struct {
	graph *Graph
}

// Invoke runs the graph to completion and returns the final state.
func (c *Compiled) Invoke(ctx context.Context, initial State) (State, error) {
	return c.run(ctx, initial, nil)
}

// Stream runs the graph and yields node_start, node_end and done events.
// The channel closes when execution finishes; an execution error surfaces
// as a closed channel without a done event, with the error available from
// the returned wait function.
func (c *Compiled) Stream(ctx context.Context, initial State) (<-chan StepEvent, func() error) {
	ch := make(chan StepEvent, 128)
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(ch)
		defer close(done)
		_, runErr = c.run(ctx, initial, func(ev StepEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()

	return ch, func() error {
		<-done
		return runErr
	}
}

type nodeWrite struct {
	node   string
	update State
}

func (c *Compiled) run(ctx context.Context, initial State, emit func(StepEvent)) (State, error) {
	g := c.graph

	state := initial.Clone()
	if state == nil {
		state = make(State)
	}
	for name := range state {
		if !g.hasChannel[name] {
			return nil, &ValidationError{Field: "state", Reason: fmt.Sprintf("initial state names undeclared channel %q", name)}
		}
	}

	visited := make(map[string]bool)
	frontier := c.successors(START, state)

	for level := 0; level < maxLevels; level++ {
		executable := make([]string, 0, len(frontier))
		for _, name := range frontier {
			if name != END && !visited[name] {
				executable = append(executable, name)
			}
		}
		if len(executable) == 0 {
			break
		}
		sort.Strings(executable)

		if emit != nil {
			for _, name := range executable {
				emit(StepEvent{Type: StepNodeStart, Node: name, State: state.Clone()})
			}
		}

		writes, err := c.runLevel(ctx, executable, state)
		if err != nil {
			return nil, err
		}

		state, err = c.merge(state, writes)
		if err != nil {
			return nil, err
		}

		if emit != nil {
			for _, w := range writes {
				emit(StepEvent{Type: StepNodeEnd, Node: w.node, Update: w.update.Clone()})
			}
		}

		next := make([]string, 0)
		seen := make(map[string]bool)
		for _, name := range executable {
			visited[name] = true
			for _, succ := range c.successors(name, state) {
				if !seen[succ] {
					seen[succ] = true
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}

	if emit != nil {
		emit(StepEvent{Type: StepDone, State: state.Clone()})
	}
	return state, nil
}

// runLevel executes every node in the level concurrently against the same
// snapshot. Writes come back ordered by node name.
func (c *Compiled) runLevel(ctx context.Context, names []string, state State) ([]nodeWrite, error) {
	snapshot := state.Clone()

	if len(names) == 1 {
		name := names[0]
		update, err := c.execNode(ctx, name, snapshot)
		if err != nil {
			return nil, err
		}
		return []nodeWrite{{node: name, update: update}}, nil
	}

	writes := make([]nodeWrite, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			update, err := c.execNode(ctx, name, snapshot)
			writes[i] = nodeWrite{node: name, update: update}
			errs[i] = err
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return writes, nil
}

func (c *Compiled) execNode(ctx context.Context, name string, snapshot State) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := c.graph.nodes[name]
	update, err := fn(ctx, snapshot.Clone())
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	for channel := range update {
		if !c.graph.hasChannel[channel] {
			return nil, &ValidationError{
				Field:  "update",
				Reason: fmt.Sprintf("node %q wrote undeclared channel %q", name, channel),
			}
		}
	}
	return update, nil
}

// merge folds a level's writes into the state. Writes group by channel; a
// channel written by more than one node needs a reducer or the merge fails
// with a ChannelConflict. Fold order follows node name order.
func (c *Compiled) merge(state State, writes []nodeWrite) (State, error) {
	byChannel := make(map[string][]nodeWrite)
	var channels []string
	for _, w := range writes {
		for channel := range w.update {
			if len(byChannel[channel]) == 0 {
				channels = append(channels, channel)
			}
			byChannel[channel] = append(byChannel[channel], w)
		}
	}
	sort.Strings(channels)

	out := state.Clone()
	for _, channel := range channels {
		writers := byChannel[channel]
		reducer := c.graph.channels[channel]

		if reducer == nil {
			if len(writers) > 1 {
				nodes := make([]string, len(writers))
				for i, w := range writers {
					nodes[i] = w.node
				}
				sort.Strings(nodes)
				return nil, &ChannelConflict{Channel: channel, Nodes: nodes}
			}
			out[channel] = writers[0].update[channel]
			continue
		}

		current, exists := out[channel]
		for _, w := range writers {
			if !exists {
				current = w.update[channel]
				exists = true
				continue
			}
			current = reducer(current, w.update[channel])
		}
		out[channel] = current
	}
	return out, nil
}

// successors resolves the nodes that follow from, static edges first, then
// conditional routers evaluated against the current state.
func (c *Compiled) successors(from string, state State) []string {
	g := c.graph
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, to := range g.edges[from] {
		add(to)
	}
	for _, e := range g.conditional[from] {
		key := e.router(state.Clone())
		if e.pathMap != nil {
			if target, ok := e.pathMap[key]; ok {
				add(target)
			}
			continue
		}
		if _, ok := g.nodes[key]; ok || key == END {
			add(key)
		}
	}
	return out
}
