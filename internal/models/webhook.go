package models

import (
	"encoding/json"
	"time"
)

// WebhookEventStatus is the processing state of a received provider event.
type WebhookEventStatus string

const (
	WebhookEventReceived  WebhookEventStatus = "received"
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventSkipped   WebhookEventStatus = "skipped"
	WebhookEventFailed    WebhookEventStatus = "failed"
	WebhookEventDead      WebhookEventStatus = "dead"
)

// WebhookEvent is the ledger row for a provider event, keyed by the
// provider's event id.
type WebhookEvent struct {
	EventID     string             `json:"event_id"`
	EventType   string             `json:"event_type"`
	Payload     json.RawMessage    `json:"payload"`
	Status      WebhookEventStatus `json:"status"`
	Attempts    int                `json:"attempts"`
	LastError   *string            `json:"last_error,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}
