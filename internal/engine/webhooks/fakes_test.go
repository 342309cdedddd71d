package webhooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

// In-memory store doubles. They copy on read and write like a real store, so
// callers never share memory with persisted state.

type fakeSubStore struct {
	mu       sync.Mutex
	webhooks map[string]*models.Webhook
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{webhooks: make(map[string]*models.Webhook)}
}

func (s *fakeSubStore) Create(w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.webhooks[w.ID] = &cp
	return nil
}

func (s *fakeSubStore) Get(id string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *fakeSubStore) Update(w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[w.ID]; !ok {
		return fmt.Errorf("webhook %s not found", w.ID)
	}
	cp := *w
	s.webhooks[w.ID] = &cp
	return nil
}

func (s *fakeSubStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.webhooks, id)
	return nil
}

func (s *fakeSubStore) ListByUser(userID string) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, w := range s.webhooks {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) CountByUser(userID string) (int, error) {
	list, _ := s.ListByUser(userID)
	return len(list), nil
}

func (s *fakeSubStore) ListActiveByEvent(userID string, t events.Type) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, w := range s.webhooks {
		if w.UserID == userID && w.IsActive() && w.SubscribesTo(t) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) UpdateSecret(id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.webhooks[id]; ok {
		w.Secret = secret
	}
	return nil
}

func (s *fakeSubStore) UpdateStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.webhooks[id]; ok {
		w.Status = status
	}
	return nil
}

func (s *fakeSubStore) RecordSuccess(id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.webhooks[id]; ok {
		w.ConsecutiveFailures = 0
		w.LastTriggeredAt = at
	}
	return nil
}

func (s *fakeSubStore) RecordFailure(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return 0, fmt.Errorf("webhook %s not found", id)
	}
	w.ConsecutiveFailures++
	return w.ConsecutiveFailures, nil
}

type fakeDeliveryStore struct {
	mu      sync.Mutex
	records map[string]*models.WebhookDelivery
	order   []string
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{records: make(map[string]*models.WebhookDelivery)}
}

func (s *fakeDeliveryStore) Append(d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.records[d.ID] = &cp
	s.order = append(s.order, d.ID)
	return nil
}

func (s *fakeDeliveryStore) Update(d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[d.ID]; !ok {
		return fmt.Errorf("delivery %s not found", d.ID)
	}
	cp := *d
	s.records[d.ID] = &cp
	return nil
}

func (s *fakeDeliveryStore) Get(id string) (*models.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeDeliveryStore) ListByWebhook(webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WebhookDelivery
	for i := len(s.order) - 1; i >= 0; i-- {
		d := s.records[s.order[i]]
		if d.WebhookID != webhookID {
			continue
		}
		cp := *d
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeDeliveryStore) ListDueRetries(now int64) ([]*models.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, id := range s.order {
		d := s.records[id]
		if d.Status != models.DeliveryStatusRetrying || d.NextRetryAt == nil || *d.NextRetryAt > now {
			continue
		}
		if s.hasLaterAttemptLocked(d) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeDeliveryStore) hasLaterAttemptLocked(d *models.WebhookDelivery) bool {
	for _, other := range s.records {
		if other.EventID == d.EventID && other.Attempt > d.Attempt {
			return true
		}
	}
	return false
}

// all returns every record for a webhook oldest first.
func (s *fakeDeliveryStore) all(webhookID string) []*models.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, id := range s.order {
		d := s.records[id]
		if d.WebhookID == webhookID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out
}

type transportCall struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []transportCall
	respond func(url string) (*Response, error)
}

func newFakeTransport(respond func(url string) (*Response, error)) *fakeTransport {
	if respond == nil {
		respond = func(string) (*Response, error) {
			return &Response{StatusCode: 200, Body: "ok", Duration: 5 * time.Millisecond}, nil
		}
	}
	return &fakeTransport{respond: respond}
}

func (t *fakeTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	t.mu.Lock()
	t.calls = append(t.calls, transportCall{URL: url, Body: body, Headers: headers})
	t.mu.Unlock()
	return t.respond(url)
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *fakeTransport) lastCall() transportCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[len(t.calls)-1]
}

func alwaysFail(status int) func(string) (*Response, error) {
	return func(string) (*Response, error) {
		return &Response{StatusCode: status, Body: "nope", Duration: 2 * time.Millisecond}, nil
	}
}

func seedWebhook(s *fakeSubStore, id, userID string, types ...events.Type) *models.Webhook {
	if len(types) == 0 {
		types = []events.Type{events.PriceAlertTriggered}
	}
	secret, _ := GenerateSecret()
	w := &models.Webhook{
		ID:        id,
		UserID:    userID,
		URL:       "https://example.com/hook",
		Events:    types,
		Secret:    secret,
		Status:    models.WebhookStatusActive,
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}
	s.Create(w)
	return w
}
