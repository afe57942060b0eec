// Package watcher observes session-log directory trees and feeds appended
// lines into the thread registry, emitting one file_change event per
// coalesced burst of writes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/internal/hub"
	"github.com/thebtf/threadwatch/internal/logreader"
	"github.com/thebtf/threadwatch/internal/thread"
)

// Broadcaster is the fan-out surface change events are emitted through.
type Broadcaster interface {
	Broadcast(hub.Event)
}

// Watcher observes one or more root directories recursively for session-log
// writes. It is the only writer of the thread registry.
type Watcher struct {
	roots       []string
	registry    *thread.Registry
	broadcaster Broadcaster
	debounce    time.Duration

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	offsets map[string]int64
	timers  map[string]*time.Timer
	running bool

	// procMu serializes file processing so registry writes and offset
	// commits stay single-writer even when debounce timers fire together.
	procMu sync.Mutex
}

// New creates a watcher over the given roots.
func New(roots []string, registry *thread.Registry, b Broadcaster, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		roots:       roots,
		registry:    registry,
		broadcaster: b,
		debounce:    debounce,
		fsw:         fsw,
		ctx:         ctx,
		cancel:      cancel,
		offsets:     make(map[string]int64),
		timers:      make(map[string]*time.Timer),
	}, nil
}

// Start performs the initial scan of every root (building thread state
// without broadcasting) and begins watching for changes. A missing root is
// logged and skipped; the watcher keeps running for the others.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			log.Warn().Err(err).Str("root", root).Msg("Failed to watch root, skipping")
			continue
		}
		w.scanTree(root, false)
	}

	go w.watchLoop()
	return nil
}

// Stop halts the event loop, pending debounce timers and the fs watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	for _, t := range w.timers {
		t.Stop()
	}
	return w.fsw.Close()
}

// addTree adds fsnotify watches for a directory and all its subdirectories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// scanTree processes every existing session log under a root.
func (w *Watcher) scanTree(root string, broadcast bool) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Scan error, continuing")
			return nil
		}
		if !d.IsDir() && isSessionLog(path) {
			w.processFile(path, broadcast)
		}
		return nil
	})
}

// watchLoop is the main fsnotify event loop.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Watcher error, continuing")
		}
	}
}

// handleEvent dispatches one fs event. Directory creation extends the watch
// tree; file writes arm the per-file debounce timer.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		if event.Op&fsnotify.Remove != 0 && w.isRoot(path) {
			log.Warn().Str("root", path).Msg("Watched root disappeared, continuing with remaining roots")
		}
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to watch new directory")
				return
			}
			w.scanTree(path, true)
			return
		}
	}

	if isSessionLog(path) {
		w.scheduleReread(path)
	}
}

// scheduleReread restarts (never stacks) the debounce timer for a file, so
// a burst of appends becomes a single re-read and at most one file_change.
func (w *Watcher) scheduleReread(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		running := w.running
		w.mu.Unlock()
		if running {
			w.processFile(path, true)
		}
	})
}

// processFile delta-reads a file from its committed offset, applies new
// messages to the registry, and broadcasts a file_change when the thread
// set actually grew.
func (w *Watcher) processFile(path string, broadcast bool) {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	w.mu.Lock()
	start := w.offsets[path]
	w.mu.Unlock()

	projectID := projectIDFor(path)
	msgs, newOffset, err := logreader.ReadFrom(path, projectID, start)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to read session log")
		return
	}

	w.mu.Lock()
	w.offsets[path] = newOffset
	w.mu.Unlock()

	if len(msgs) == 0 {
		return
	}

	added := w.registry.Apply(projectID, msgs)
	log.Debug().Str("project", projectID).Str("file", filepath.Base(path)).
		Int("parsed", len(msgs)).Int("added", added).Msg("Applied session log delta")

	if added > 0 && broadcast {
		w.broadcaster.Broadcast(hub.FileChange{ProjectID: projectID})
	}
}

// isRoot reports whether the path is one of the configured roots.
func (w *Watcher) isRoot(path string) bool {
	for _, root := range w.roots {
		if filepath.Clean(root) == path {
			return true
		}
	}
	return false
}

// projectIDFor derives the project id from the log's parent directory name.
func projectIDFor(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// isSessionLog matches per-session log files. Subagent scratch files
// (agent-*.jsonl) are not conversations and are skipped.
func isSessionLog(path string) bool {
	if !strings.HasSuffix(path, ".jsonl") {
		return false
	}
	return !strings.HasPrefix(filepath.Base(path), "agent-")
}
