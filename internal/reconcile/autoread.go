package reconcile

import (
	"sync"
	"time"
)

// ReadState is the per-notification auto-read lifecycle.
type ReadState int

const (
	// StateUnseen means the notification is not on screen.
	StateUnseen ReadState = iota
	// StateVisible means the notification is on screen and the dwell window
	// is running.
	StateVisible
	// StateFading means the dwell window elapsed and the fade-out window is
	// running.
	StateFading
	// StateRead is terminal; the notification stayed visible through both
	// windows.
	StateRead
)

func (s ReadState) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StateVisible:
		return "visible"
	case StateFading:
		return "fading"
	case StateRead:
		return "read"
	default:
		return "unknown"
	}
}

type readEntry struct {
	state ReadState
	// gen invalidates scheduled timers. A timer captures the generation at
	// schedule time and only fires if it still matches, so a cancelled or
	// restarted window can never advance the state.
	gen   uint64
	timer *time.Timer
}

// AutoReader drives notifications from Unseen through Visible and Fading to
// Read based on viewport visibility. A notification becomes read only after
// it stays continuously visible for the full dwell window plus the fade
// window; leaving the viewport at any point before that cancels the episode,
// and re-entering restarts the dwell from zero.
type AutoReader struct {
	mu      sync.Mutex
	dwell   time.Duration
	fade    time.Duration
	entries map[string]*readEntry
	onRead  func(id string)
}

// NewAutoReader builds an AutoReader. onRead fires once per notification,
// outside the internal lock, when its fade completes.
func NewAutoReader(dwell, fade time.Duration, onRead func(id string)) *AutoReader {
	return &AutoReader{
		dwell:   dwell,
		fade:    fade,
		entries: make(map[string]*readEntry),
		onRead:  onRead,
	}
}

// SetVisible records a visibility change for one notification. Becoming
// visible starts the dwell timer; becoming hidden before read cancels any
// pending timer and returns the entry to Unseen.
func (a *AutoReader) SetVisible(id string, visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[id]
	if !ok {
		e = &readEntry{state: StateUnseen}
		a.entries[id] = e
	}
	if e.state == StateRead {
		return
	}

	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	if !visible {
		e.state = StateUnseen
		return
	}

	e.state = StateVisible
	gen := e.gen
	e.timer = time.AfterFunc(a.dwell, func() {
		a.dwellElapsed(id, gen)
	})
}

// dwellElapsed moves Visible to Fading and arms the fade timer, provided the
// episode that scheduled it is still live.
func (a *AutoReader) dwellElapsed(id string, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	if !ok || e.gen != gen || e.state != StateVisible {
		return
	}
	e.state = StateFading
	e.timer = time.AfterFunc(a.fade, func() {
		a.fadeElapsed(id, gen)
	})
}

// fadeElapsed completes the episode and fires the read callback.
func (a *AutoReader) fadeElapsed(id string, gen uint64) {
	a.mu.Lock()
	e, ok := a.entries[id]
	if !ok || e.gen != gen || e.state != StateFading {
		a.mu.Unlock()
		return
	}
	e.state = StateRead
	e.timer = nil
	cb := a.onRead
	a.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

// State reports a notification's current lifecycle state.
func (a *AutoReader) State(id string) ReadState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[id]; ok {
		return e.state
	}
	return StateUnseen
}

// Forget drops tracking for a notification, cancelling any pending timer.
// Used when a notification is deleted or marked read out of band.
func (a *AutoReader) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[id]; ok {
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(a.entries, id)
	}
}

// Close cancels all pending timers.
func (a *AutoReader) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}
