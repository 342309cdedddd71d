package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

type WorkerConfig struct {
	// MaxAttempts bounds automatic retries per logical event. Reaching it
	// without success is terminal.
	MaxAttempts int
	// DisableThreshold auto-disables a webhook after this many consecutive
	// failed attempts across events. 0 turns the behavior off.
	DisableThreshold int
	// Backoff is the delay table indexed by attempt number; nil means
	// DefaultBackoff.
	Backoff []time.Duration
}

// Worker executes a single delivery attempt: serialize, sign, POST, classify,
// and append exactly one WebhookDelivery record.
type Worker struct {
	subs       SubscriptionStore
	deliveries DeliveryStore
	transport  Transport
	cfg        WorkerConfig
}

func NewWorker(subs SubscriptionStore, deliveries DeliveryStore, transport Transport, cfg WorkerConfig) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{subs: subs, deliveries: deliveries, transport: transport, cfg: cfg}
}

// Attempt delivers one payload to one webhook. eventID is the idempotency key
// and stays the same across retries of the same logical event; attempt is the
// 1-based position in that lineage. The webhook is always signed with its
// current secret, so a rotation between attempts takes effect on the next
// send.
func (w *Worker) Attempt(ctx context.Context, webhook *models.Webhook, eventID string, eventType events.Type, data map[string]any, attempt int) (*models.WebhookDelivery, error) {
	now := time.Now()

	payload, err := json.Marshal(models.WebhookPayload{
		ID:        eventID,
		Type:      eventType,
		Timestamp: now.Unix(),
		Data:      data,
		Meta: models.PayloadMeta{
			WebhookID:  webhook.ID,
			Attempt:    attempt,
			APIVersion: models.PayloadVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	d := &models.WebhookDelivery{
		ID:        "del_" + uuid.New().String(),
		WebhookID: webhook.ID,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Status:    models.DeliveryStatusPending,
		Attempt:   attempt,
		CreatedAt: now.Unix(),
	}
	if err := w.deliveries.Append(d); err != nil {
		return nil, fmt.Errorf("append delivery: %w", err)
	}

	d.Status = models.DeliveryStatusSending
	if err := w.deliveries.Update(d); err != nil {
		log.Warn().Err(err).Str("delivery_id", d.ID).Msg("failed to mark delivery sending")
	}

	headers := map[string]string{
		"Content-Type":          "application/json",
		SignatureHeader:         BuildHeader(payload, webhook.Secret),
		"X-BlockPulse-Event":    eventType.String(),
		"X-BlockPulse-Delivery": d.ID,
	}

	resp, postErr := w.transport.Post(ctx, webhook.URL, payload, headers)
	completed := time.Now().Unix()

	if resp != nil {
		code := resp.StatusCode
		d.ResponseStatus = &code
		d.ResponseBody = resp.Body
		d.LatencyMS = resp.Duration.Milliseconds()
		deliveryLatency.Observe(resp.Duration.Seconds())
	}

	if postErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = models.DeliveryStatusSuccess
		d.CompletedAt = &completed
		if err := w.subs.RecordSuccess(webhook.ID, completed); err != nil {
			log.Warn().Err(err).Str("webhook_id", webhook.ID).Msg("failed to record delivery success")
		}
	} else {
		if postErr != nil {
			d.ErrorMessage = postErr.Error()
		} else {
			d.ErrorMessage = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		w.recordFailure(webhook)

		if attempt < w.cfg.MaxAttempts {
			d.Status = models.DeliveryStatusRetrying
			next := time.Now().Add(NextDelay(w.cfg.Backoff, attempt)).Unix()
			d.NextRetryAt = &next
		} else {
			d.Status = models.DeliveryStatusFailed
			d.CompletedAt = &completed
		}
	}
	deliveryAttempts.WithLabelValues(d.Status).Inc()

	if err := w.deliveries.Update(d); err != nil {
		return d, fmt.Errorf("update delivery: %w", err)
	}

	log.Info().
		Str("webhook_id", webhook.ID).
		Str("event_id", eventID).
		Str("event_type", eventType.String()).
		Int("attempt", attempt).
		Str("status", d.Status).
		Msg("webhook delivery attempt")

	return d, nil
}

func (w *Worker) recordFailure(webhook *models.Webhook) {
	count, err := w.subs.RecordFailure(webhook.ID)
	if err != nil {
		log.Warn().Err(err).Str("webhook_id", webhook.ID).Msg("failed to record delivery failure")
		return
	}
	if w.cfg.DisableThreshold > 0 && count >= w.cfg.DisableThreshold && webhook.Status == models.WebhookStatusActive {
		if err := w.subs.UpdateStatus(webhook.ID, models.WebhookStatusFailed); err != nil {
			log.Warn().Err(err).Str("webhook_id", webhook.ID).Msg("failed to disable webhook")
			return
		}
		log.Warn().Str("webhook_id", webhook.ID).Int("consecutive_failures", count).
			Msg("webhook disabled after consecutive failures")
	}
}
