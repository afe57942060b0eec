// Package thread groups a project's messages into ordered conversation
// threads. The Registry owns the in-memory thread set; only the watcher
// goroutine mutates it, readers take immutable snapshots.
package thread

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/pkg/models"
)

// Registry holds the authoritative thread set for every watched project.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*projectState
}

// projectState tracks one project's threads and message identity indexes.
type projectState struct {
	threads       []*models.Thread
	byID          map[string]*models.Thread
	messageThread map[string]string // message uuid -> owning thread id
	sessionThread map[string]string // session id -> thread currently receiving appends
}

// NewRegistry creates an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[string]*projectState)}
}

// Apply merges parsed messages into the project's thread set and returns how
// many were actually added. Known UUIDs are ignored, which makes Apply
// idempotent under re-reads of the same log. Thread identity is stable: an
// append extends the thread keyed by its first user message, never a copy.
func (r *Registry) Apply(projectID string, msgs []models.Message) int {
	if len(msgs) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.projects[projectID]
	if st == nil {
		st = &projectState{
			byID:          make(map[string]*models.Thread),
			messageThread: make(map[string]string),
			sessionThread: make(map[string]string),
		}
		r.projects[projectID] = st
	}

	added := 0
	for i := range msgs {
		msg := msgs[i]
		if _, seen := st.messageThread[msg.UUID]; seen {
			continue
		}

		var target *models.Thread
		switch msg.Type {
		case models.MessageTypeUser:
			target = st.placeUserMessage(projectID, msg)
		case models.MessageTypeAssistant:
			target = st.placeAssistantMessage(msg)
		default:
			continue
		}
		if target == nil {
			log.Debug().Str("project", projectID).Str("uuid", msg.UUID).
				Msg("Message has no owning thread, dropping")
			continue
		}

		target.Messages = append(target.Messages, msg)
		if msg.Timestamp.After(target.UpdatedAt) {
			target.UpdatedAt = msg.Timestamp
		}
		st.messageThread[msg.UUID] = target.ThreadID
		st.sessionThread[msg.SessionID] = target.ThreadID
		added++
	}

	return added
}

// placeUserMessage resolves the thread a user message belongs to, creating a
// new one at each conversation boundary. The first message of a new session
// that references a message of an existing thread attaches to that thread as
// a continuation session instead of starting a fresh one.
func (st *projectState) placeUserMessage(projectID string, msg models.Message) *models.Thread {
	_, sessionKnown := st.sessionThread[msg.SessionID]
	if !sessionKnown && msg.ParentUUID != "" {
		if parentThread, ok := st.messageThread[msg.ParentUUID]; ok {
			t := st.byID[parentThread]
			t.IsContinuationSession = true
			return t
		}
	}

	t := &models.Thread{
		ThreadID:  msg.UUID,
		ProjectID: projectID,
		UpdatedAt: msg.Timestamp,
	}
	st.threads = append(st.threads, t)
	st.byID[t.ThreadID] = t
	return t
}

// placeAssistantMessage resolves the thread for an assistant message: the
// session's current thread, or the parent message's thread when the session
// is not yet known.
func (st *projectState) placeAssistantMessage(msg models.Message) *models.Thread {
	if id, ok := st.sessionThread[msg.SessionID]; ok {
		return st.byID[id]
	}
	if id, ok := st.messageThread[msg.ParentUUID]; ok {
		return st.byID[id]
	}
	return nil
}

// SnapshotProject returns a deep copy of the project's threads in creation
// order. The copy is safe to hand to the query API or serialize.
func (r *Registry) SnapshotProject(projectID string) []models.Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.projects[projectID]
	if st == nil {
		return nil
	}
	return copyThreads(st.threads)
}

// Snapshot returns deep-copied threads for every project.
func (r *Registry) Snapshot() map[string][]models.Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]models.Thread, len(r.projects))
	for id, st := range r.projects {
		out[id] = copyThreads(st.threads)
	}
	return out
}

// ThreadCount returns the number of threads known for a project.
func (r *Registry) ThreadCount(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.projects[projectID]
	if st == nil {
		return 0
	}
	return len(st.threads)
}

func copyThreads(threads []*models.Thread) []models.Thread {
	out := make([]models.Thread, len(threads))
	for i, t := range threads {
		c := *t
		c.Messages = make([]models.Message, len(t.Messages))
		copy(c.Messages, t.Messages)
		out[i] = c
	}
	return out
}

// hasMessage reports whether the registry has seen a message UUID in the
// given project.
func (r *Registry) hasMessage(projectID, messageUUID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.projects[projectID]
	if st == nil {
		return false
	}
	_, ok := st.messageThread[messageUUID]
	return ok
}
