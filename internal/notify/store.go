// Package notify implements notification intake, deduplication, storage and
// the read/unread bookkeeping behind the live popup view.
package notify

import (
	"context"
	"database/sql"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/thebtf/threadwatch/pkg/models"
)

// schema creates the notifications table and its indexes.
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	project_id       TEXT NOT NULL,
	notification     TEXT NOT NULL DEFAULT '',
	tool_name        TEXT NOT NULL DEFAULT '',
	tool_input       TEXT NOT NULL DEFAULT '',
	details          TEXT NOT NULL DEFAULT '{}',
	dedup_key        TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	created_at_epoch INTEGER NOT NULL,
	read             INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_notifications_project_read ON notifications(project_id, read);
CREATE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications(dedup_key, created_at_epoch);
`

// Store provides SQLite-backed notification persistence with a prepared
// statement cache.
type Store struct {
	db      *sql.DB
	stmtsMu sync.Mutex
	stmts   map[string]*sql.Stmt
}

// OpenStore opens (or creates) the notification database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// Mutations are serialized upstream per project; a single connection
	// avoids SQLITE_BUSY churn under modernc's driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, stmts: make(map[string]*sql.Stmt)}, nil
}

// Close releases cached statements and the database handle.
func (s *Store) Close() error {
	s.stmtsMu.Lock()
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)
	s.stmtsMu.Unlock()
	return s.db.Close()
}

// getStmt returns a cached prepared statement for the query.
func (s *Store) getStmt(query string) (*sql.Stmt, error) {
	s.stmtsMu.Lock()
	defer s.stmtsMu.Unlock()

	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// Insert stores a new notification under its dedup key.
func (s *Store) Insert(ctx context.Context, n *models.Notification, dedupKey string) error {
	detailsJSON, _ := json.Marshal(n.Details)

	const query = `
		INSERT INTO notifications
		(id, type, project_id, notification, tool_name, tool_input, details, dedup_key, timestamp, created_at_epoch, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`
	stmt, err := s.getStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		n.ID, string(n.Type), n.ProjectID, n.Notification, n.ToolName, n.ToolInput,
		string(detailsJSON), dedupKey, n.Timestamp.UTC().Format(time.RFC3339), time.Now().UnixMilli(),
	)
	return err
}

// SeenSince reports whether a notification with the dedup key was stored at
// or after the given time.
func (s *Store) SeenSince(ctx context.Context, dedupKey string, since time.Time) (bool, error) {
	const query = `SELECT 1 FROM notifications WHERE dedup_key = ? AND created_at_epoch >= ? LIMIT 1`
	stmt, err := s.getStmt(query)
	if err != nil {
		return false, err
	}

	var one int
	err = stmt.QueryRowContext(ctx, dedupKey, since.UnixMilli()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves a notification, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	const query = `
		SELECT id, type, project_id, notification, tool_name, tool_input, details, timestamp, read
		FROM notifications WHERE id = ?
	`
	stmt, err := s.getStmt(query)
	if err != nil {
		return nil, err
	}

	n, err := scanNotification(stmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// MarkRead flips a notification to read. Returns false when the id is
// unknown or the notification was already read.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE notifications SET read = 1 WHERE id = ? AND read = 0`
	stmt, err := s.getStmt(query)
	if err != nil {
		return false, err
	}
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkAllRead marks every unread notification for a project (or all projects
// when project is empty) as read. Returns the affected count.
func (s *Store) MarkAllRead(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE read = 0`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE read = 0 AND project_id = ?`, projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes one notification. Returns false when the id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	stmt, err := s.getStmt(`DELETE FROM notifications WHERE id = ?`)
	if err != nil {
		return false, err
	}
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// DeleteAll removes every notification for a project, or everything when
// project is empty.
func (s *Store) DeleteAll(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		res, err := s.db.ExecContext(ctx, `DELETE FROM notifications`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns notifications newest first, optionally filtered by project.
func (s *Store) List(ctx context.Context, projectID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, project_id, notification, tool_name, tool_input, details, timestamp, read
		FROM notifications
	`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at_epoch DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Stats returns the aggregate unread counters.
func (s *Store) Stats(ctx context.Context) (models.NotificationStats, error) {
	stats := models.NotificationStats{ByProject: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, COUNT(*) FROM notifications WHERE read = 0 GROUP BY project_id`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var project string
		var count int
		if err := rows.Scan(&project, &count); err != nil {
			return stats, err
		}
		stats.ByProject[project] = count
		stats.UnreadCount += count
	}
	return stats, rows.Err()
}

// scanNotification scans one notification row.
func scanNotification(scanner interface{ Scan(...any) error }) (*models.Notification, error) {
	var (
		n       models.Notification
		typ     string
		details string
		ts      string
		read    int
	)
	if err := scanner.Scan(&n.ID, &typ, &n.ProjectID, &n.Notification,
		&n.ToolName, &n.ToolInput, &details, &ts, &read); err != nil {
		return nil, err
	}

	n.Type = models.NotificationType(typ)
	n.Read = read != 0
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		n.Timestamp = t
	}
	if details != "" && details != "{}" {
		_ = json.Unmarshal([]byte(details), &n.Details)
	}
	return &n, nil
}
