// Package main provides the notification hook entry point.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/thebtf/threadwatch/pkg/hooks"
)

// Input is the hook input from Claude Code.
type Input struct {
	hooks.BaseInput
	Message string `json:"message"`
	Title   string `json:"title"`
}

func main() {
	hooks.RunHook("Notification", handleNotification)
}

func handleNotification(ctx *hooks.HookContext, input *Input) error {
	fmt.Fprintf(os.Stderr, "[notification] %s\n", input.Message)

	payload := map[string]any{
		"type":         "notification",
		"project_id":   ctx.Project,
		"notification": input.Message,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"details": map[string]string{
			"session_id": ctx.SessionID,
			"title":      input.Title,
		},
	}
	_, err := hooks.POST(ctx.Port, "/api/notifications/hook", payload)
	return err
}
