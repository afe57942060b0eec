// Package main provides the pre-tool-use hook entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/thebtf/threadwatch/pkg/hooks"
)

// Input is the hook input from Claude Code.
type Input struct {
	hooks.BaseInput
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
	ToolUseID string          `json:"tool_use_id"`
}

func main() {
	hooks.RunHook("PreToolUse", handlePreToolUse)
}

func handlePreToolUse(ctx *hooks.HookContext, input *Input) error {
	fmt.Fprintf(os.Stderr, "[pre-tool-use] %s\n", input.ToolName)

	notificationType := "tool_use"
	if input.PermissionMode == "default" || input.PermissionMode == "plan" {
		// In non-auto modes a tool invocation surfaces as a pending
		// permission decision.
		notificationType = "permission_request"
	}

	payload := map[string]any{
		"type":       notificationType,
		"project_id": ctx.Project,
		"tool_name":  input.ToolName,
		"tool_input": string(input.ToolInput),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"details": map[string]string{
			"session_id":  ctx.SessionID,
			"tool_use_id": input.ToolUseID,
		},
	}
	if input.ToolUseID != "" {
		payload["idempotency_key"] = input.ToolUseID
	}

	_, err := hooks.POST(ctx.Port, "/api/notifications/hook", payload)
	return err
}
