package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/internal/notify"
	"github.com/thebtf/threadwatch/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"clients":        s.hub.ClientCount(),
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleHook accepts one hook delivery. Duplicates within the dedup window
// are accepted silently so hook scripts never need retry logic.
func (s *Service) handleHook(w http.ResponseWriter, r *http.Request) {
	var payload notify.HookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	n, err := s.intake.Accept(r.Context(), payload)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("project", payload.ProjectID).Msg("Hook intake failed")
		writeError(w, http.StatusInternalServerError, "intake failed")
		return
	}

	resp := map[string]any{"accepted": true}
	if n != nil {
		resp["id"] = n.ID
	} else {
		resp["duplicate"] = true
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Service) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	notifications, err := s.intake.List(r.Context(), projectID, limit)
	if err != nil {
		log.Error().Err(err).Msg("Notification list failed")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Service) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.intake.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Error().Err(err).Str("id", id).Msg("Mark read failed")
		writeError(w, http.StatusInternalServerError, "mark read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "read"})
}

func (s *Service) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	affected, err := s.intake.MarkAllRead(r.Context(), projectID)
	if err != nil {
		log.Error().Err(err).Str("project", projectID).Msg("Mark all read failed")
		writeError(w, http.StatusInternalServerError, "mark all read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": affected})
}

func (s *Service) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.intake.Delete(r.Context(), id); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Error().Err(err).Str("id", id).Msg("Delete failed")
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Service) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	affected, err := s.intake.DeleteAll(r.Context(), projectID)
	if err != nil {
		log.Error().Err(err).Str("project", projectID).Msg("Delete all failed")
		writeError(w, http.StatusInternalServerError, "delete all failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": affected})
}

// handleConversations serves the thread set, either for one project or all
// of them. The response is an immutable snapshot consistent with the last
// file_change broadcast.
func (s *Service) handleConversations(w http.ResponseWriter, r *http.Request) {
	if projectID := r.URL.Query().Get("project"); projectID != "" {
		threads := s.registry.SnapshotProject(projectID)
		if threads == nil {
			threads = []models.Thread{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"project_id": projectID,
			"threads":    threads,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": s.registry.Snapshot()})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.intake.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Stats query failed")
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
