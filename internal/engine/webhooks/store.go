package webhooks

import (
	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

// SubscriptionStore is the persistence boundary for webhook subscriptions.
// Implementations return (nil, nil) for lookups that find nothing. Mutations
// are scoped to a single row by id, which is all the atomicity the engine
// relies on.
type SubscriptionStore interface {
	Create(w *models.Webhook) error
	Get(id string) (*models.Webhook, error)
	Update(w *models.Webhook) error
	Delete(id string) error
	ListByUser(userID string) ([]*models.Webhook, error)
	CountByUser(userID string) (int, error)
	// ListActiveByEvent returns the user's active webhooks whose event set
	// contains t.
	ListActiveByEvent(userID string, t events.Type) ([]*models.Webhook, error)
	UpdateSecret(id, secret string) error
	UpdateStatus(id, status string) error
	// RecordSuccess resets the consecutive-failure counter and stamps
	// last_triggered_at.
	RecordSuccess(id string, at int64) error
	// RecordFailure increments the consecutive-failure counter and returns
	// the new count.
	RecordFailure(id string) (int, error)
}

// DeliveryStore is the append-mostly store of delivery attempt records.
type DeliveryStore interface {
	Append(d *models.WebhookDelivery) error
	Update(d *models.WebhookDelivery) error
	Get(id string) (*models.WebhookDelivery, error)
	// ListByWebhook returns records newest first; limit <= 0 means no limit.
	ListByWebhook(webhookID string, limit int) ([]*models.WebhookDelivery, error)
	// ListDueRetries returns records in status retrying whose next_retry_at
	// is at or before now (unix seconds).
	ListDueRetries(now int64) ([]*models.WebhookDelivery, error)
}
