package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"blockpulse/internal/platform/models"
)

// DefaultBackoff is the fixed retry schedule indexed by attempt number:
// the delay after attempt N is DefaultBackoff[N-1], clamped to the last
// entry.
var DefaultBackoff = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
}

var ErrDeliveryNotRetryable = errors.New("delivery already succeeded")

// NextDelay returns the backoff before the attempt that follows attempt.
// Attempts beyond the table length clamp to the final entry.
func NextDelay(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

// Scheduler owns the deferred-retry machinery: a cancellable timer per
// pending retry, keyed so that deleting or deactivating a webhook drops its
// timers deterministically, plus a cron sweep that re-arms persisted retries
// after a restart.
type Scheduler struct {
	subs       SubscriptionStore
	deliveries DeliveryStore
	worker     *Worker

	mu        sync.Mutex
	timers    map[string]*time.Timer
	byWebhook map[string]map[string]struct{}
	closed    bool

	cron *cron.Cron
}

func NewScheduler(subs SubscriptionStore, deliveries DeliveryStore, worker *Worker) *Scheduler {
	return &Scheduler{
		subs:       subs,
		deliveries: deliveries,
		worker:     worker,
		timers:     make(map[string]*time.Timer),
		byWebhook:  make(map[string]map[string]struct{}),
	}
}

// Start re-arms any retries left over from a previous run and begins the
// periodic due-retry sweep.
func (s *Scheduler) Start() {
	s.SweepDue()
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 1m", s.SweepDue); err != nil {
		log.Error().Err(err).Msg("failed to register retry sweep")
		return
	}
	s.cron.Start()
}

// Stop halts the sweep and drops every armed timer. In-flight attempts are
// not interrupted.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		scheduledRetries.Dec()
	}
	s.byWebhook = make(map[string]map[string]struct{})
}

// Schedule arms a timer for a delivery recorded as retrying. Arming only
// after the record is persisted keeps attempts for one logical event strictly
// sequential. Scheduling the same record twice is a no-op.
func (s *Scheduler) Schedule(d *models.WebhookDelivery) {
	if d.Status != models.DeliveryStatusRetrying || d.NextRetryAt == nil {
		return
	}
	delay := time.Until(time.Unix(*d.NextRetryAt, 0))
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, armed := s.timers[d.ID]; armed {
		return
	}
	deliveryID, webhookID := d.ID, d.WebhookID
	s.timers[deliveryID] = time.AfterFunc(delay, func() {
		s.fire(deliveryID, webhookID)
	})
	if s.byWebhook[webhookID] == nil {
		s.byWebhook[webhookID] = make(map[string]struct{})
	}
	s.byWebhook[webhookID][deliveryID] = struct{}{}
	scheduledRetries.Inc()
}

// CancelWebhook drops every pending retry timer for a webhook. Called on
// delete and deactivation so no orphaned timer fires against a gone webhook.
func (s *Scheduler) CancelWebhook(webhookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for deliveryID := range s.byWebhook[webhookID] {
		if t, ok := s.timers[deliveryID]; ok {
			t.Stop()
			delete(s.timers, deliveryID)
			scheduledRetries.Dec()
		}
	}
	delete(s.byWebhook, webhookID)
}

// Retry is operator-triggered redelivery outside the automatic schedule. It
// shares the lineage's attempt counter, so an automatic retry that follows
// still sees a monotonic attempt number. Returns (nil, nil) when the delivery
// or its webhook no longer exists.
func (s *Scheduler) Retry(ctx context.Context, deliveryID string) (*models.WebhookDelivery, error) {
	d, err := s.deliveries.Get(deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	if d.Status == models.DeliveryStatusSuccess {
		return nil, ErrDeliveryNotRetryable
	}

	// Supersede any pending automatic timer for this record.
	s.cancelDelivery(d.ID, d.WebhookID)

	webhook, err := s.subs.Get(d.WebhookID)
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, nil
	}

	next, err := s.attemptNext(ctx, webhook, d)
	if err != nil {
		return nil, err
	}
	if next.Status == models.DeliveryStatusRetrying {
		s.Schedule(next)
	}
	return next, nil
}

// SweepDue re-arms persisted retries whose next_retry_at has passed and that
// have no timer, which happens after a process restart.
func (s *Scheduler) SweepDue() {
	due, err := s.deliveries.ListDueRetries(time.Now().Unix())
	if err != nil {
		log.Error().Err(err).Msg("retry sweep failed")
		return
	}
	for _, d := range due {
		s.Schedule(d)
	}
}

func (s *Scheduler) fire(deliveryID, webhookID string) {
	s.cancelDelivery(deliveryID, webhookID)

	d, err := s.deliveries.Get(deliveryID)
	if err != nil || d == nil {
		return
	}
	if d.Status != models.DeliveryStatusRetrying {
		return
	}

	webhook, err := s.subs.Get(webhookID)
	if err != nil {
		log.Error().Err(err).Str("webhook_id", webhookID).Msg("retry aborted: webhook lookup failed")
		return
	}
	if webhook == nil || !webhook.IsActive() {
		log.Debug().Str("webhook_id", webhookID).Msg("retry dropped: webhook gone or inactive")
		return
	}

	next, err := s.attemptNext(context.Background(), webhook, d)
	if err != nil {
		log.Error().Err(err).Str("delivery_id", deliveryID).Msg("retry attempt failed")
		return
	}
	if next.Status == models.DeliveryStatusRetrying {
		s.Schedule(next)
	}
}

// attemptNext replays the stored payload data as attempt N+1 of the lineage.
// The worker re-reads nothing: the webhook passed in is current, so a rotated
// secret is picked up at send time.
func (s *Scheduler) attemptNext(ctx context.Context, webhook *models.Webhook, d *models.WebhookDelivery) (*models.WebhookDelivery, error) {
	var p models.WebhookPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return nil, err
	}
	return s.worker.Attempt(ctx, webhook, d.EventID, d.EventType, p.Data, d.Attempt+1)
}

func (s *Scheduler) cancelDelivery(deliveryID, webhookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[deliveryID]; ok {
		t.Stop()
		delete(s.timers, deliveryID)
		scheduledRetries.Dec()
	}
	if set, ok := s.byWebhook[webhookID]; ok {
		delete(set, deliveryID)
		if len(set) == 0 {
			delete(s.byWebhook, webhookID)
		}
	}
}
