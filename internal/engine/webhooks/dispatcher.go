package webhooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

// Dispatcher fans an application event out to every matching active
// subscription. It is the single ingress point the rest of the platform uses
// to raise events.
type Dispatcher struct {
	subs      SubscriptionStore
	worker    *Worker
	scheduler *Scheduler
}

func NewDispatcher(subs SubscriptionStore, worker *Worker, scheduler *Scheduler) *Dispatcher {
	return &Dispatcher{subs: subs, worker: worker, scheduler: scheduler}
}

// Dispatch delivers eventType with data to all of the user's active matching
// webhooks, in parallel across subscriptions. Each subscription gets its own
// event id (the receiver-side idempotency key for that lineage) and a
// value-copy of data, so later mutation by the caller cannot leak into
// retries. Zero matches yields an empty slice, not an error; one subscriber
// failing never aborts delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, eventType events.Type, data map[string]any) ([]*models.WebhookDelivery, error) {
	if !events.IsSupported(eventType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	matching, err := d.subs.ListActiveByEvent(userID, eventType)
	if err != nil {
		return nil, err
	}
	if len(matching) == 0 {
		return []*models.WebhookDelivery{}, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		records = make([]*models.WebhookDelivery, 0, len(matching))
	)
	for _, webhook := range matching {
		wg.Add(1)
		go func(webhook *models.Webhook) {
			defer wg.Done()
			rec := d.deliverOne(ctx, webhook, eventType, copyData(data))
			if rec != nil {
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
		}(webhook)
	}
	wg.Wait()

	return records, nil
}

// SendTest delivers a synthetic ping event to a single webhook regardless of
// its paused/failed status, so owners can exercise an endpoint from the
// dashboard. Returns (nil, nil) when the webhook does not exist.
func (d *Dispatcher) SendTest(ctx context.Context, webhookID string) (*models.WebhookDelivery, error) {
	webhook, err := d.subs.Get(webhookID)
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, nil
	}
	data := map[string]any{"message": "test delivery from BlockPulse"}
	return d.deliverFirstAttempt(ctx, webhook, events.Ping, data), nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, webhook *models.Webhook, eventType events.Type, data map[string]any) *models.WebhookDelivery {
	return d.deliverFirstAttempt(ctx, webhook, eventType, data)
}

func (d *Dispatcher) deliverFirstAttempt(ctx context.Context, webhook *models.Webhook, eventType events.Type, data map[string]any) *models.WebhookDelivery {
	eventID := "evt_" + uuid.New().String()
	rec, err := d.worker.Attempt(ctx, webhook, eventID, eventType, data, 1)
	if err != nil {
		log.Error().Err(err).Str("webhook_id", webhook.ID).Str("event_type", eventType.String()).
			Msg("delivery attempt errored")
		return rec
	}
	if rec.Status == models.DeliveryStatusRetrying {
		d.scheduler.Schedule(rec)
	}
	return rec
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
