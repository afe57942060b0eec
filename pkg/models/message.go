// Package models contains domain models for threadwatch.
package models

import "time"

// MessageType represents the role of a conversation turn.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

// Message is one turn in a conversation, parsed from a session log line.
// Messages are immutable once ingested; downstream consumers reference them.
type Message struct {
	UUID       string      `json:"uuid"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	SessionID  string      `json:"session_id"`
	ProjectID  string      `json:"project_id"`
	ParentUUID string      `json:"parent_uuid,omitempty"`
}

// Thread is an ordered sequence of messages starting with a user message.
// ThreadID is the UUID of the first user message and never changes as the
// backing log grows.
type Thread struct {
	ThreadID              string    `json:"thread_id"`
	ProjectID             string    `json:"project_id"`
	Messages              []Message `json:"messages"`
	IsContinuationSession bool      `json:"is_continuation_session"`
	UpdatedAt             time.Time `json:"updated_at"`
}
