package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "blockpulse/internal/api/context"
	"blockpulse/internal/engine/events"
	"blockpulse/internal/engine/webhooks"
	apiErrors "blockpulse/internal/pkg/errors"
	"blockpulse/internal/platform/models"
)

type WebhookHandler struct {
	registry   *webhooks.Registry
	dispatcher *webhooks.Dispatcher
	scheduler  *webhooks.Scheduler
	stats      *webhooks.Aggregator
	deliveries webhooks.DeliveryStore
}

func NewWebhookHandler(registry *webhooks.Registry, dispatcher *webhooks.Dispatcher, scheduler *webhooks.Scheduler, stats *webhooks.Aggregator, deliveries webhooks.DeliveryStore) *WebhookHandler {
	return &WebhookHandler{
		registry:   registry,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		stats:      stats,
		deliveries: deliveries,
	}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	var req struct {
		URL         string        `json:"url"`
		Events      []events.Type `json:"events"`
		Description string        `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.registry.Create(userID, req.URL, req.Events, req.Description)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	// The only response that ever carries the secret besides regeneration.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	owned, err := h.registry.ListByUser(userID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}

	out := make([]*models.Webhook, 0, len(owned))
	for _, webhook := range owned {
		out = append(out, webhook.Redacted())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhook.Redacted())
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req struct {
		URL         *string       `json:"url"`
		Events      []events.Type `json:"events"`
		Description *string       `json:"description"`
		Active      *bool         `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	updated, err := h.registry.Update(webhook.ID, webhooks.UpdatePatch{
		URL:         req.URL,
		Events:      req.Events,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if updated == nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated.Redacted())
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	deleted, err := h.registry.Delete(webhook.ID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if !deleted {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	secret, err := h.registry.RegenerateSecret(webhook.ID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if secret == "" {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"secret": secret})
}

// Test sends a synthetic ping delivery so owners can verify an endpoint.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	delivery, err := h.dispatcher.SendTest(r.Context(), webhook.ID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if delivery == nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(delivery)
}

func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.deliveries.ListByWebhook(webhook.ID, limit)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if records == nil {
		records = []*models.WebhookDelivery{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *WebhookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.owned(w, r)
	if !ok {
		return
	}

	stats, err := h.stats.StatsFor(webhook.ID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// RetryDelivery is operator-triggered redelivery of a non-success attempt.
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	deliveryID := params.ByName("delivery_id")

	delivery, err := h.deliveries.Get(deliveryID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if delivery == nil || !h.ownsWebhook(userID, delivery.WebhookID) {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Delivery not found", nil)
		return
	}

	retried, err := h.scheduler.Retry(r.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, webhooks.ErrDeliveryNotRetryable) {
			apiErrors.WriteError(w, http.StatusConflict, apiErrors.ErrCodeNotRetryable, "Delivery already succeeded", nil)
			return
		}
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if retried == nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Delivery not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(retried)
}

// Dispatch is the single ingress point the rest of the platform uses to
// raise an event for a user.
func (h *WebhookHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	var req struct {
		Type events.Type    `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	records, err := h.dispatcher.Dispatch(r.Context(), userID, req.Type, req.Data)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(records)
}

func (h *WebhookHandler) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events.All())
}

// owned resolves :webhook_id and enforces ownership. A webhook belonging to
// someone else reads as not found.
func (h *WebhookHandler) owned(w http.ResponseWriter, r *http.Request) (*models.Webhook, bool) {
	userID := r.Context().Value(apiContext.UserID).(string)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	webhook, err := h.registry.Get(id)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
		return nil, false
	}
	if webhook == nil || webhook.UserID != userID {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return nil, false
	}
	return webhook, true
}

func (h *WebhookHandler) ownsWebhook(userID, webhookID string) bool {
	webhook, err := h.registry.Get(webhookID)
	return err == nil && webhook != nil && webhook.UserID == userID
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhooks.ErrLimitExceeded):
		apiErrors.WriteError(w, http.StatusUnprocessableEntity, apiErrors.ErrCodeLimitExceeded, err.Error(), nil)
	case errors.Is(err, webhooks.ErrInvalidURL):
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidURL, err.Error(), nil)
	case errors.Is(err, webhooks.ErrInvalidEventType):
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidEventType, err.Error(), nil)
	default:
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, err.Error(), nil)
	}
}
