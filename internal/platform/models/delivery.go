package models

import "blockpulse/internal/engine/events"

// PayloadVersion is the schema version stamped into every envelope's meta.
const PayloadVersion = "2024-11-01"

// Delivery attempt lifecycle: pending -> sending -> {success, retrying, failed}.
// success and failed are terminal; retrying means a follow-up attempt (a new
// record with an incremented attempt number) has been scheduled.
const (
	DeliveryStatusPending  = "pending"
	DeliveryStatusSending  = "sending"
	DeliveryStatusSuccess  = "success"
	DeliveryStatusRetrying = "retrying"
	DeliveryStatusFailed   = "failed"
)

// WebhookPayload is the envelope POSTed to the subscriber. The event ID stays
// identical across retries of the same logical delivery so receivers can
// deduplicate.
type WebhookPayload struct {
	ID        string         `json:"id"`
	Type      events.Type    `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Meta      PayloadMeta    `json:"meta"`
}

type PayloadMeta struct {
	WebhookID  string `json:"webhookId"`
	Attempt    int    `json:"attemptNumber"`
	APIVersion string `json:"apiVersion"`
}

// WebhookDelivery is the audit record of a single delivery attempt. One row
// per attempt, never one per logical event, so the full retry history stays
// inspectable.
type WebhookDelivery struct {
	ID             string      `json:"id"`
	WebhookID      string      `json:"webhook_id"`
	EventID        string      `json:"event_id"`
	EventType      events.Type `json:"event_type"`
	Payload        []byte      `json:"payload"`
	Status         string      `json:"status"`
	ResponseStatus *int        `json:"response_status,omitempty"`
	ResponseBody   string      `json:"response_body,omitempty"`
	LatencyMS      int64       `json:"latency_ms"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	Attempt        int         `json:"attempt"`
	NextRetryAt    *int64      `json:"next_retry_at,omitempty"`
	CreatedAt      int64       `json:"created_at"`
	CompletedAt    *int64      `json:"completed_at,omitempty"`
}

func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusFailed
}
