package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	closed   bool
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	r.exchange, r.key, r.msg = exchange, key, msg
	return nil
}

func (r *recordingChannel) Close() error {
	r.closed = true
	return nil
}

func TestAMQPNotifierPublishesByKind(t *testing.T) {
	ch := &recordingChannel{}
	n := &AMQPNotifier{ch: ch, exchange: "billing.events"}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := n.Notify(context.Background(), Notification{
		Kind:           KindInvoicePaymentFailed,
		OrganizationID: "org_1",
		Subject:        "Payment failed",
		OccurredAt:     at,
	})
	if err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if ch.exchange != "billing.events" || ch.key != KindInvoicePaymentFailed {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing properties: %+v", ch.msg)
	}

	var got Notification
	if err := json.Unmarshal(ch.msg.Body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.OrganizationID != "org_1" {
		t.Fatalf("expected org_1, got %q", got.OrganizationID)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel to be closed")
	}
}
