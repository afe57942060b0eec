package models

import "time"

// NotificationType represents the kind of hook-reported event.
type NotificationType string

const (
	NotificationTypePermissionRequest NotificationType = "permission_request"
	NotificationTypeToolUse           NotificationType = "tool_use"
	NotificationTypeGeneric           NotificationType = "notification"
)

// Valid reports whether t is one of the accepted notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypePermissionRequest, NotificationTypeToolUse, NotificationTypeGeneric:
		return true
	}
	return false
}

// Notification is one hook-reported event stored by the intake pipeline.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	ProjectID    string            `json:"project_id"`
	Notification string            `json:"notification,omitempty"`
	ToolName     string            `json:"tool_name,omitempty"`
	ToolInput    string            `json:"tool_input,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Read         bool              `json:"read"`
}

// NotificationStats is the aggregate unread counter snapshot broadcast to
// subscribers after every notification mutation.
type NotificationStats struct {
	UnreadCount int            `json:"unread_count"`
	ByProject   map[string]int `json:"by_project"`
}
