// Package hub maintains live subscriber connections and fans out change
// events to all of them.
package hub

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/thebtf/threadwatch/pkg/models"
)

// Event is one push-channel frame. The concrete types form a closed set so
// the hub and its clients share an exhaustive contract instead of matching
// on ad hoc strings.
type Event interface {
	EventType() string
}

// Frame type discriminators as they appear on the wire.
const (
	TypeFileChange       = "file_change"
	TypeNewNotification  = "new_notification"
	TypeNotificationRead = "notification_read"
	TypeStatsUpdate      = "stats_update"
)

// FileChange announces that a project's thread set changed; clients re-fetch
// the full payload through the query API.
type FileChange struct {
	ProjectID string `json:"project_id"`
}

// EventType implements Event.
func (FileChange) EventType() string { return TypeFileChange }

// NewNotification carries a freshly stored notification.
type NewNotification struct {
	Notification models.Notification `json:"notification"`
}

// EventType implements Event.
func (NewNotification) EventType() string { return TypeNewNotification }

// NotificationRead announces a notification was marked read.
type NotificationRead struct {
	ID string `json:"id"`
}

// EventType implements Event.
func (NotificationRead) EventType() string { return TypeNotificationRead }

// StatsUpdate carries the aggregate unread counters after any notification
// mutation.
type StatsUpdate struct {
	UnreadCount int            `json:"unread_count"`
	ByProject   map[string]int `json:"by_project"`
}

// EventType implements Event.
func (StatsUpdate) EventType() string { return TypeStatsUpdate }

// EncodeFrame serializes an event into its wire frame, a JSON object whose
// "type" field is the discriminator next to the event's own fields.
func EncodeFrame(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case FileChange:
		return json.Marshal(struct {
			Type string `json:"type"`
			FileChange
		}{TypeFileChange, ev})
	case NewNotification:
		return json.Marshal(struct {
			Type string `json:"type"`
			NewNotification
		}{TypeNewNotification, ev})
	case NotificationRead:
		return json.Marshal(struct {
			Type string `json:"type"`
			NotificationRead
		}{TypeNotificationRead, ev})
	case StatsUpdate:
		return json.Marshal(struct {
			Type string `json:"type"`
			StatsUpdate
		}{TypeStatsUpdate, ev})
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
}
