package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// ClaimWebhookEvent records a received provider event. It returns false when
// the event id is already in the ledger. Two kinds of earlier entries can be
// taken over: a claim abandoned in "received" for longer than staleAfter, and
// a "failed" entry with no pending or running replay job, which happens when
// the replay could not be queued.
func (s *Store) ClaimWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte, staleAfter time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO webhook_events (event_id, event_type, payload, status, attempts)
VALUES ($1, $2, $3, 'received', 1)
ON CONFLICT (event_id) DO UPDATE
SET status = 'received',
    attempts = webhook_events.attempts + 1,
    received_at = NOW()
WHERE (webhook_events.status = 'received'
       AND webhook_events.received_at < NOW() - INTERVAL '1 second' * $4)
   OR (webhook_events.status = 'failed'
       AND NOT EXISTS (
           SELECT 1 FROM jobs
           WHERE jobs.job_type = $5
             AND jobs.payload->>'event_id' = webhook_events.event_id
             AND jobs.status IN ('pending', 'processing')))`,
		eventID, eventType, payload, staleAfter.Seconds(), models.JobTypeWebhookReplay,
	)
	if err != nil {
		return false, fmt.Errorf("store: claim webhook event %s: %w", eventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim webhook event %s: %w", eventID, err)
	}
	return n == 1, nil
}

// MarkWebhookEvent moves a ledger entry to the given status. lastErr is
// stored when non-empty.
func (s *Store) MarkWebhookEvent(ctx context.Context, eventID string, status models.WebhookEventStatus, lastErr string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE webhook_events
SET status = $2,
    last_error = NULLIF($3, ''),
    processed_at = CASE WHEN $2 IN ('processed', 'skipped') THEN NOW() ELSE processed_at END
WHERE event_id = $1`,
		eventID, status, lastErr,
	)
	if err != nil {
		return fmt.Errorf("store: mark webhook event %s: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// GetWebhookEvent returns the ledger entry for eventID including its payload.
func (s *Store) GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var (
		ev          models.WebhookEvent
		payload     []byte
		lastErr     sql.NullString
		processedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
SELECT event_id, event_type, payload, status, attempts, last_error, received_at, processed_at
FROM webhook_events
WHERE event_id = $1`, eventID).Scan(
		&ev.EventID, &ev.EventType, &payload, &ev.Status, &ev.Attempts,
		&lastErr, &ev.ReceivedAt, &processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get webhook event: %w", err)
	}

	ev.Payload = payload
	ev.LastError = nullStringPtr(lastErr)
	ev.ProcessedAt = nullTimePtr(processedAt)
	return &ev, nil
}

// ListWebhookEvents returns ledger entries in any of the given statuses,
// newest first. Payloads are not loaded.
func (s *Store) ListWebhookEvents(ctx context.Context, statuses []models.WebhookEventStatus, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, event_type, status, attempts, last_error, received_at, processed_at
FROM webhook_events
WHERE status = ANY($1)
ORDER BY received_at DESC
LIMIT $2`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list webhook events: %w", err)
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		var (
			ev          models.WebhookEvent
			lastErr     sql.NullString
			processedAt sql.NullTime
		)
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.Status, &ev.Attempts, &lastErr, &ev.ReceivedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("store: scan webhook event: %w", err)
		}
		ev.LastError = nullStringPtr(lastErr)
		ev.ProcessedAt = nullTimePtr(processedAt)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate webhook events: %w", err)
	}
	return events, nil
}

// CleanupWebhookEvents removes settled ledger entries older than olderThan.
// Failed and dead entries are kept for inspection.
func (s *Store) CleanupWebhookEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM webhook_events
WHERE status IN ('processed', 'skipped')
  AND received_at < NOW() - INTERVAL '1 second' * $1`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("store: cleanup webhook events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
