// Package reconcile tracks, per open thread, which messages a client has
// already been shown versus which have arrived but are still pending
// disclosure. Transitions are pure functions over UUID sets so a reconnecting
// client that refetches the full thread converges to the same partition.
package reconcile

import (
	"sync"

	"github.com/thebtf/threadwatch/pkg/models"
)

// alwaysVisible is the number of leading messages in a thread that are shown
// unconditionally. New content must never hide or reflow them.
const alwaysVisible = 2

// ThreadView partitions one thread's messages into read (currently rendered)
// and unread (arrived but not yet disclosed). Every server-known message is
// in exactly one of the two sets.
type ThreadView struct {
	read   []models.Message
	unread []models.Message
	known  map[string]struct{}
}

// NewThreadView initializes a view from a full thread load. Everything starts
// read; nothing starts unread.
func NewThreadView(initial []models.Message) *ThreadView {
	v := &ThreadView{
		known: make(map[string]struct{}, len(initial)),
	}
	for _, m := range initial {
		if _, ok := v.known[m.UUID]; ok {
			continue
		}
		v.known[m.UUID] = struct{}{}
		v.read = append(v.read, m)
	}
	return v
}

// ApplyDelta merges a fetched message set into the view. Messages already
// known are ignored, so applying the same delta twice is a no-op. New
// messages land in unread, except when they fall within the always-visible
// leading positions, in which case they are disclosed immediately.
func (v *ThreadView) ApplyDelta(msgs []models.Message) {
	for _, m := range msgs {
		if _, ok := v.known[m.UUID]; ok {
			continue
		}
		v.known[m.UUID] = struct{}{}
		if len(v.read)+len(v.unread) < alwaysVisible {
			v.read = append(v.read, m)
			continue
		}
		v.unread = append(v.unread, m)
	}
}

// Reveal moves everything in unread into read. This is the only transition
// that changes what is rendered.
func (v *ThreadView) Reveal() {
	v.read = append(v.read, v.unread...)
	v.unread = nil
}

// UnreadCount reports how many messages are pending disclosure. The
// always-visible leading messages never count as unread.
func (v *ThreadView) UnreadCount() int {
	return len(v.unread)
}

// Read returns the currently rendered messages in arrival order.
func (v *ThreadView) Read() []models.Message {
	out := make([]models.Message, len(v.read))
	copy(out, v.read)
	return out
}

// Unread returns the pending messages in arrival order.
func (v *ThreadView) Unread() []models.Message {
	out := make([]models.Message, len(v.unread))
	copy(out, v.unread)
	return out
}

// Engine holds one ThreadView per open thread for a single client.
type Engine struct {
	mu    sync.Mutex
	views map[string]*ThreadView
}

// NewEngine returns an empty reconciliation engine.
func NewEngine() *Engine {
	return &Engine{views: make(map[string]*ThreadView)}
}

// ApplyDelta routes a fetched message set to the thread's view. A thread
// never seen before treats the incoming set as an initial load.
func (e *Engine) ApplyDelta(threadID string, msgs []models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[threadID]
	if !ok {
		e.views[threadID] = NewThreadView(msgs)
		return
	}
	v.ApplyDelta(msgs)
}

// Reveal discloses all pending messages for a thread. Unknown threads are a
// no-op.
func (e *Engine) Reveal(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[threadID]; ok {
		v.Reveal()
	}
}

// View returns the thread's view, or nil when the thread has never loaded.
func (e *Engine) View(threadID string) *ThreadView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.views[threadID]
}

// UnreadCount reports pending messages for one thread, zero when unknown.
func (e *Engine) UnreadCount(threadID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[threadID]; ok {
		return v.UnreadCount()
	}
	return 0
}

// Drop forgets a thread's view, typically when the client closes it.
func (e *Engine) Drop(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.views, threadID)
}
