package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openomni/omni/schema"
)

// UserInputToolName is the built-in sentinel tool the model calls to ask
// the human for information mid-run.
const UserInputToolName = "get_user_input"

// UserInputTool pauses the run. It never executes; the loop detects the
// call, parks in WAITING_INPUT and resumes once values arrive.
type UserInputTool struct{}

func NewUserInputTool() *UserInputTool { return &UserInputTool{} }

func (t *UserInputTool) Name() string { return UserInputToolName }

func (t *UserInputTool) Description() string {
	return "Ask the user for information you need to continue. " +
		"The run pauses until the user answers every requested field."
}

func (t *UserInputTool) Parameters() map[string]any {
	return ObjectSchema(map[string]any{
		"fields": ArrayProp("Fields the user must fill in", ObjectSchema(map[string]any{
			"field_name":        StringProp("Identifier for the field"),
			"field_type":        StringProp("Expected value type, e.g. string or number"),
			"field_description": StringProp("What to ask the user for"),
		}, "field_name", "field_description")),
		"context": StringProp("Why the input is needed"),
	}, "fields")
}

// Execute is only reached if a caller bypasses the loop's pause handling.
func (t *UserInputTool) Execute(ctx context.Context, args json.RawMessage) schema.ToolResult {
	return schema.FailResult("get_user_input must be handled by the agent loop")
}

// InputRequest implements HumanInput by decoding the model's field list.
func (t *UserInputTool) InputRequest(callID string, args json.RawMessage) (*schema.UserInputRequest, error) {
	var payload struct {
		Fields  []schema.UserInputField `json:"fields"`
		Context string                  `json:"context"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, fmt.Errorf("decode user input request: %w", err)
		}
	}
	if len(payload.Fields) == 0 {
		payload.Fields = []schema.UserInputField{{
			Name:        "input",
			Type:        "string",
			Description: "Additional information needed to continue",
		}}
	}
	return &schema.UserInputRequest{
		ToolCallID: callID,
		Fields:     payload.Fields,
		Context:    payload.Context,
	}, nil
}
