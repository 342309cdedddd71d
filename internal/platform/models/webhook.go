package models

import "blockpulse/internal/engine/events"

const (
	WebhookStatusActive = "active"
	WebhookStatusPaused = "paused"
	// WebhookStatusFailed marks a webhook auto-disabled after too many
	// consecutive delivery failures. The owner re-activates it explicitly.
	WebhookStatusFailed = "failed"
)

type Webhook struct {
	ID                  string        `json:"id"`
	UserID              string        `json:"user_id"`
	URL                 string        `json:"url"`
	Events              []events.Type `json:"events"` // JSON array in DB
	Secret              string        `json:"secret,omitempty"`
	Status              string        `json:"status"`
	Description         string        `json:"description,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastTriggeredAt     int64         `json:"last_triggered_at,omitempty"`
	CreatedAt           int64         `json:"created_at"`
	UpdatedAt           int64         `json:"updated_at"`
}

func (w *Webhook) IsActive() bool {
	return w.Status == WebhookStatusActive
}

// SubscribesTo reports whether the webhook's event set contains t.
func (w *Webhook) SubscribesTo(t events.Type) bool {
	for _, e := range w.Events {
		if e == t {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to return to API clients: the signing secret
// is only ever shown on creation and explicit regeneration.
func (w Webhook) Redacted() *Webhook {
	w.Secret = ""
	return &w
}
