package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/internal/hub"
	"github.com/thebtf/threadwatch/internal/privacy"
	"github.com/thebtf/threadwatch/pkg/models"
)

// ErrInvalidPayload is returned when a hook payload is missing required
// fields or carries an unknown type.
var ErrInvalidPayload = errors.New("invalid hook payload")

// ErrNotFound is returned for operations on unknown notification ids.
var ErrNotFound = errors.New("notification not found")

// Broadcaster is the fan-out surface the intake pipeline emits through.
type Broadcaster interface {
	Broadcast(hub.Event)
}

// HookPayload is the untyped JSON body accepted from an external hook caller.
type HookPayload struct {
	Type           string            `json:"type"`
	ProjectID      string            `json:"project_id"`
	Notification   string            `json:"notification,omitempty"`
	ToolName       string            `json:"tool_name,omitempty"`
	ToolInput      string            `json:"tool_input,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
	Timestamp      string            `json:"timestamp"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// Intake validates, deduplicates and stores hook events, and broadcasts the
// resulting notification changes. All mutations for one project are
// serialized through a per-project lock so unread counters never race;
// different projects proceed independently.
type Intake struct {
	store       *Store
	broadcaster Broadcaster
	dedupWindow time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewIntake creates the intake service.
func NewIntake(store *Store, b Broadcaster, dedupWindow time.Duration) *Intake {
	return &Intake{
		store:       store,
		broadcaster: b,
		dedupWindow: dedupWindow,
		locks:       make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutex guarding one project's partition.
func (in *Intake) projectLock(projectID string) *sync.Mutex {
	in.locksMu.Lock()
	defer in.locksMu.Unlock()

	mu, ok := in.locks[projectID]
	if !ok {
		mu = &sync.Mutex{}
		in.locks[projectID] = mu
	}
	return mu
}

// Accept processes one inbound hook payload. It returns the stored
// notification, or nil when the payload deduplicated against a recent one
// (which is a success: duplicate deliveries are silently idempotent).
func (in *Intake) Accept(ctx context.Context, p HookPayload) (*models.Notification, error) {
	typ := models.NotificationType(p.Type)
	if !typ.Valid() || p.ProjectID == "" {
		return nil, fmt.Errorf("%w: type=%q project_id=%q", ErrInvalidPayload, p.Type, p.ProjectID)
	}

	ts := time.Now().UTC()
	if p.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q", ErrInvalidPayload, p.Timestamp)
		}
		ts = parsed.UTC()
	}

	p.Notification = privacy.Clean(p.Notification)
	p.ToolInput = privacy.RedactSecrets(p.ToolInput)

	key := dedupKey(p, ts)

	mu := in.projectLock(p.ProjectID)
	mu.Lock()
	defer mu.Unlock()

	seen, err := in.store.SeenSince(ctx, key, time.Now().Add(-in.dedupWindow))
	if err != nil {
		return nil, err
	}
	if seen {
		log.Debug().Str("project", p.ProjectID).Str("dedupKey", key).
			Msg("Duplicate hook delivery within window, dropping")
		return nil, nil
	}

	n := &models.Notification{
		ID:           ulid.Make().String(),
		Type:         typ,
		ProjectID:    p.ProjectID,
		Notification: p.Notification,
		ToolName:     p.ToolName,
		ToolInput:    p.ToolInput,
		Details:      p.Details,
		Timestamp:    ts,
	}
	if err := in.store.Insert(ctx, n, key); err != nil {
		return nil, err
	}

	in.broadcaster.Broadcast(hub.NewNotification{Notification: *n})
	in.broadcastStats(ctx)
	return n, nil
}

// MarkRead marks one notification read and broadcasts the change. Marking an
// already-read notification is a no-op success (no duplicate broadcast).
func (in *Intake) MarkRead(ctx context.Context, id string) error {
	n, err := in.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotFound
	}

	mu := in.projectLock(n.ProjectID)
	mu.Lock()
	defer mu.Unlock()

	changed, err := in.store.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	in.broadcaster.Broadcast(hub.NotificationRead{ID: id})
	in.broadcastStats(ctx)
	return nil
}

// MarkAllRead marks every unread notification for a project (all projects
// when empty) and broadcasts updated counters.
func (in *Intake) MarkAllRead(ctx context.Context, projectID string) (int64, error) {
	var affected int64
	var err error
	if projectID == "" {
		affected, err = in.store.MarkAllRead(ctx, "")
	} else {
		mu := in.projectLock(projectID)
		mu.Lock()
		affected, err = in.store.MarkAllRead(ctx, projectID)
		mu.Unlock()
	}
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		in.broadcastStats(ctx)
	}
	return affected, nil
}

// Delete removes one notification and broadcasts updated counters.
func (in *Intake) Delete(ctx context.Context, id string) error {
	n, err := in.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotFound
	}

	mu := in.projectLock(n.ProjectID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := in.store.Delete(ctx, id); err != nil {
		return err
	}
	in.broadcastStats(ctx)
	return nil
}

// DeleteAll purges a project's notifications (all projects when empty).
func (in *Intake) DeleteAll(ctx context.Context, projectID string) (int64, error) {
	var affected int64
	var err error
	if projectID == "" {
		affected, err = in.store.DeleteAll(ctx, "")
	} else {
		mu := in.projectLock(projectID)
		mu.Lock()
		affected, err = in.store.DeleteAll(ctx, projectID)
		mu.Unlock()
	}
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		in.broadcastStats(ctx)
	}
	return affected, nil
}

// List returns stored notifications, newest first.
func (in *Intake) List(ctx context.Context, projectID string, limit int) ([]*models.Notification, error) {
	return in.store.List(ctx, projectID, limit)
}

// Stats returns the aggregate unread counters.
func (in *Intake) Stats(ctx context.Context) (models.NotificationStats, error) {
	return in.store.Stats(ctx)
}

// broadcastStats pushes a stats_update frame with current counters.
func (in *Intake) broadcastStats(ctx context.Context) {
	stats, err := in.store.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load notification stats")
		return
	}
	in.broadcaster.Broadcast(hub.StatsUpdate{
		UnreadCount: stats.UnreadCount,
		ByProject:   stats.ByProject,
	})
}

// dedupKey derives the identity used to collapse repeated hook deliveries.
// An explicit idempotency token wins; otherwise the key hashes the payload
// identity fields with the timestamp truncated to the second.
func dedupKey(p HookPayload, ts time.Time) string {
	if p.IdempotencyKey != "" {
		return "token:" + p.IdempotencyKey
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d",
		p.ProjectID, p.Type, p.ToolName, p.Notification, ts.Truncate(time.Second).Unix())
	return hex.EncodeToString(h.Sum(nil))
}
