package graph

import (
	"context"
	"fmt"

	"github.com/openomni/omni/agent"
)

// AgentNode wraps an agent loop as a graph node. Each invocation gets a
// fresh agent from the factory, reads the task from inputChannel and
// writes the final content to outputChannel.
func AgentNode(factory func() *agent.Agent, inputChannel, outputChannel string) NodeFunc {
	return func(ctx context.Context, s State) (State, error) {
		task, _ := s[inputChannel].(string)
		if task == "" {
			return nil, fmt.Errorf("agent node: channel %q holds no task", inputChannel)
		}

		a := factory()
		out, err := a.Run(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("agent node %q: %w", a.Name(), err)
		}
		if a.State().Status == agent.StatusWaitingInput {
			return nil, fmt.Errorf("agent node %q paused for user input mid-graph", a.Name())
		}
		return State{outputChannel: out}, nil
	}
}
