package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------- Provider webhook events ----------

// WebhookEventProcessed checks if a provider webhook event was already handled.
func WebhookEventProcessed(ctx context.Context, q DBTX, providerEventID string) bool {
	var exists int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE provider_event_id = ? AND processed = 1`, providerEventID,
	).Scan(&exists)
	return err == nil && exists > 0
}

// InsertWebhookEvent logs a received webhook event. Re-inserting an event id is a no-op.
func InsertWebhookEvent(ctx context.Context, q DBTX, providerEventID, eventType, chargeID string) error {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO webhook_events (id, provider_event_id, event_type, charge_id) VALUES (?, ?, ?, ?)`,
		id, providerEventID, eventType, nullString(chargeID),
	)
	return err
}

// MarkWebhookEventProcessed marks a webhook event as processed with timestamp.
func MarkWebhookEventProcessed(ctx context.Context, q DBTX, providerEventID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE webhook_events SET processed = 1, processed_at = ? WHERE provider_event_id = ?`,
		formatTime(time.Now()), providerEventID,
	)
	return err
}
