package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
	"github.com/PortNumber53/fleetrent/backend/internal/webhook"
)

// EventLedger lists recorded webhook events by status.
type EventLedger interface {
	ListWebhookEvents(ctx context.Context, statuses []models.WebhookEventStatus, limit int) ([]models.WebhookEvent, error)
}

// Requeuer schedules a fresh replay of a failed or dead event.
type Requeuer interface {
	Requeue(ctx context.Context, eventID string) error
}

// JobStore exposes the retry queue for inspection.
type JobStore interface {
	GetStats(ctx context.Context) (*models.JobStats, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)
}

// ListDeadLetters returns events that exhausted their replays. ?status=failed
// lists events still being retried instead.
func ListDeadLetters(ledger EventLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 100)

		statuses := []models.WebhookEventStatus{models.WebhookEventDead}
		switch r.URL.Query().Get("status") {
		case "", "dead":
		case "failed":
			statuses = []models.WebhookEventStatus{models.WebhookEventFailed}
		case "all":
			statuses = []models.WebhookEventStatus{models.WebhookEventDead, models.WebhookEventFailed}
		default:
			writeError(w, http.StatusBadRequest, "status must be dead, failed or all")
			return
		}

		events, err := ledger.ListWebhookEvents(r.Context(), statuses, limit)
		if err != nil {
			log.Error().Err(err).Msg("ListDeadLetters: failed to list events")
			writeError(w, http.StatusInternalServerError, "failed to retrieve events")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events": events,
			"count":  len(events),
		})
	}
}

// RetryDeadLetter requeues one event by provider event id.
func RetryDeadLetter(q Requeuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "id")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "event id is required")
			return
		}

		err := q.Requeue(r.Context(), eventID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
			return
		case errors.Is(err, webhook.ErrNotRequeueable):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			log.Error().Err(err).Str("event_id", eventID).Msg("RetryDeadLetter: requeue failed")
			writeError(w, http.StatusInternalServerError, "failed to requeue event")
			return
		}

		log.Info().Str("event_id", eventID).Msg("dead-lettered webhook event requeued")
		writeJSON(w, http.StatusAccepted, map[string]any{
			"event_id": eventID,
			"message":  "Event queued for replay",
		})
	}
}

// GetQueueStats returns retry-queue counts and, with ?jobs=failed, the
// failed replay jobs themselves.
func GetQueueStats(jobs JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := jobs.GetStats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("GetQueueStats: failed to get stats")
			writeError(w, http.StatusInternalServerError, "failed to retrieve job statistics")
			return
		}

		resp := map[string]any{"stats": stats}
		if status := r.URL.Query().Get("jobs"); status != "" {
			list, err := jobs.ListJobs(r.Context(), models.JobStatus(status), parseLimit(r, 50))
			if err != nil {
				log.Error().Err(err).Msg("GetQueueStats: failed to list jobs")
				writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
				return
			}
			resp["jobs"] = list
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseLimit(r *http.Request, def int) int {
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		return l
	}
	return def
}

// AdminHandler groups the dead-letter endpoints.
type AdminHandler struct {
	Ledger   EventLedger
	Requeuer Requeuer
	Jobs     JobStore
}

// RegisterRoutes registers the admin webhook routes on router.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/admin/webhooks/dead-letters", ListDeadLetters(h.Ledger))
	router.Post("/api/admin/webhooks/dead-letters/{id}/retry", RetryDeadLetter(h.Requeuer))
	router.Get("/api/admin/webhooks/queue-stats", GetQueueStats(h.Jobs))
}
