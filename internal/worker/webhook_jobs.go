package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// Replayer re-dispatches stored webhook events. *webhook.Router implements it.
type Replayer interface {
	Replay(ctx context.Context, eventID string) error
	MarkDead(ctx context.Context, eventID, reason string) error
}

// RegisterWebhookJobs wires webhook replay into w: each job replays one
// ledger event, and a job that runs out of attempts dead-letters its event.
// Call it after SetInstrumentation.
func RegisterWebhookJobs(w *Worker, r Replayer) {
	w.RegisterHandler(models.JobTypeWebhookReplay, func(ctx context.Context, job *models.Job) error {
		eventID := job.Payload.GetString("event_id")
		if eventID == "" {
			return errors.New("webhook_replay job has no event_id")
		}
		if err := r.Replay(ctx, eventID); err != nil {
			return fmt.Errorf("replay %s: %w", eventID, err)
		}
		return nil
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.instrumentation.OnDeadLetter
	w.instrumentation.OnDeadLetter = func(job *models.Job, err error) {
		if prev != nil {
			prev(job, err)
		}
		if job.JobType != models.JobTypeWebhookReplay {
			return
		}
		eventID := job.Payload.GetString("event_id")
		if eventID == "" {
			return
		}
		if merr := r.MarkDead(context.Background(), eventID, err.Error()); merr != nil {
			log.Error().Err(merr).Str("event_id", eventID).Msg("failed to dead-letter webhook event")
		}
	}
}
