package team

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openomni/omni/tools"
)

// DelegateToolName is the tool the leader calls to hand work to a member.
const DelegateToolName = "delegate_task"

type teamRunKey struct{}

type teamRun struct {
	team        *Team
	leaderRunID string
}

// withTeamRun threads the team and the leader's run id through the tool
// executor, since tools only receive a context and raw arguments.
func withTeamRun(ctx context.Context, t *Team, leaderRunID string) context.Context {
	return context.WithValue(ctx, teamRunKey{}, &teamRun{team: t, leaderRunID: leaderRunID})
}

func fromContext(ctx context.Context) (*teamRun, bool) {
	tr, ok := ctx.Value(teamRunKey{}).(*teamRun)
	return tr, ok
}

func parentRunID(ctx context.Context) string {
	if tr, ok := fromContext(ctx); ok {
		return tr.leaderRunID
	}
	return ""
}

type delegateArgs struct {
	MemberID string `json:"member_id"`
	Task     string `json:"task"`
}

func newDelegateTool() tools.Tool {
	params := tools.ObjectSchema(map[string]any{
		"member_id": tools.StringProp("ID of the member to delegate to"),
		"task":      tools.StringProp("Task description for the member"),
	}, "member_id", "task")

	return tools.NewFuncTool(DelegateToolName,
		"Delegate a task to a team member and return the member's response.",
		params,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			tr, ok := fromContext(ctx)
			if !ok {
				return "", fmt.Errorf("delegation is only available inside a team run")
			}

			var args delegateArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("invalid delegation arguments: %w", err)
			}
			if args.Task == "" {
				return "", fmt.Errorf("task must not be empty")
			}

			member, ok := tr.team.member(args.MemberID)
			if !ok {
				return "", fmt.Errorf("unknown member %q; valid ids: %v",
					args.MemberID, tr.team.memberIDs())
			}

			run := tr.team.runMember(ctx, member, args.Task)
			if !run.Success {
				return "", fmt.Errorf("%s", run.Response)
			}
			return run.Response, nil
		})
}
