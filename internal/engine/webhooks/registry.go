package webhooks

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

var (
	ErrLimitExceeded    = errors.New("subscription limit reached")
	ErrInvalidURL       = errors.New("invalid webhook url")
	ErrInvalidEventType = errors.New("unsupported event type")
)

type RegistryConfig struct {
	// MaxPerUser caps how many subscriptions one user may own.
	MaxPerUser int
	// AllowLoopbackURLs permits http://localhost targets, for development.
	AllowLoopbackURLs bool
}

// RetryCanceller is the slice of the scheduler the registry needs: dropping a
// webhook must drop its pending retries.
type RetryCanceller interface {
	CancelWebhook(webhookID string)
}

// Registry owns the subscription lifecycle: validation, secret issuance and
// rotation, and the cleanup hooks that keep the scheduler consistent.
type Registry struct {
	store     SubscriptionStore
	canceller RetryCanceller
	cfg       RegistryConfig
}

func NewRegistry(store SubscriptionStore, canceller RetryCanceller, cfg RegistryConfig) *Registry {
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 10
	}
	return &Registry{store: store, canceller: canceller, cfg: cfg}
}

func (r *Registry) Create(userID, url string, types []events.Type, description string) (*models.Webhook, error) {
	count, err := r.store.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	if count >= r.cfg.MaxPerUser {
		return nil, fmt.Errorf("%w: user %s already owns %d webhooks", ErrLimitExceeded, userID, count)
	}

	if err := validateTargetURL(url, r.cfg.AllowLoopbackURLs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := validateEventTypes(types); err != nil {
		return nil, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	now := time.Now().Unix()
	w := &models.Webhook{
		ID:          "wh_" + uuid.New().String(),
		UserID:      userID,
		URL:         url,
		Events:      types,
		Secret:      secret,
		Status:      models.WebhookStatusActive,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.Create(w); err != nil {
		return nil, err
	}

	log.Info().Str("webhook_id", w.ID).Str("user_id", userID).Str("url", url).Msg("webhook created")
	return w, nil
}

// UpdatePatch carries the mutable fields; nil pointers and nil slices mean
// "leave unchanged".
type UpdatePatch struct {
	URL         *string
	Events      []events.Type
	Description *string
	Active      *bool
}

// Update re-validates any changed URL or event set. Returns (nil, nil) when
// the webhook does not exist.
func (r *Registry) Update(id string, patch UpdatePatch) (*models.Webhook, error) {
	w, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}

	if patch.URL != nil {
		if err := validateTargetURL(*patch.URL, r.cfg.AllowLoopbackURLs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		w.URL = *patch.URL
	}
	if patch.Events != nil {
		if err := validateEventTypes(patch.Events); err != nil {
			return nil, err
		}
		w.Events = patch.Events
	}
	if patch.Description != nil {
		w.Description = *patch.Description
	}
	if patch.Active != nil {
		if *patch.Active {
			w.Status = models.WebhookStatusActive
			w.ConsecutiveFailures = 0
		} else {
			w.Status = models.WebhookStatusPaused
			r.cancelRetries(id)
		}
	}
	w.UpdatedAt = time.Now().Unix()

	if err := r.store.Update(w); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes the subscription and cancels any retries still scheduled
// against it. Returns false when nothing existed.
func (r *Registry) Delete(id string) (bool, error) {
	w, err := r.store.Get(id)
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	r.cancelRetries(id)
	if err := r.store.Delete(id); err != nil {
		return false, err
	}
	log.Info().Str("webhook_id", id).Msg("webhook deleted")
	return true, nil
}

// RegenerateSecret rotates the signing secret, invalidating the previous one
// immediately. Pending retries will sign with the new secret at send time.
// Returns "" when the webhook does not exist.
func (r *Registry) RegenerateSecret(id string) (string, error) {
	w, err := r.store.Get(id)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", nil
	}
	secret, err := GenerateSecret()
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	if err := r.store.UpdateSecret(id, secret); err != nil {
		return "", err
	}
	log.Info().Str("webhook_id", id).Msg("webhook secret rotated")
	return secret, nil
}

func (r *Registry) Get(id string) (*models.Webhook, error) {
	return r.store.Get(id)
}

func (r *Registry) ListByUser(userID string) ([]*models.Webhook, error) {
	return r.store.ListByUser(userID)
}

func (r *Registry) cancelRetries(webhookID string) {
	if r.canceller != nil {
		r.canceller.CancelWebhook(webhookID)
	}
}

func validateEventTypes(types []events.Type) error {
	if len(types) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrInvalidEventType)
	}
	for _, t := range types {
		if !events.IsSupported(t) {
			return fmt.Errorf("%w: %q", ErrInvalidEventType, t)
		}
	}
	return nil
}
