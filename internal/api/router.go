package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiContext "blockpulse/internal/api/context"
	"blockpulse/internal/api/handlers"
	"blockpulse/internal/api/middleware"
)

type Dependencies struct {
	WebhookHandler     *handlers.WebhookHandler
	HealthHandler      *handlers.HealthHandler
	IdentityMiddleware *middleware.IdentityMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	identity := deps.IdentityMiddleware
	wh := deps.WebhookHandler

	// Subscription management
	router.POST("/api/v1/webhooks", chain(wh.Create, identity.Handle))
	router.GET("/api/v1/webhooks", chain(wh.List, identity.Handle))
	router.GET("/api/v1/webhooks/:webhook_id", chain(wh.Get, identity.Handle))
	router.PATCH("/api/v1/webhooks/:webhook_id", chain(wh.Update, identity.Handle))
	router.DELETE("/api/v1/webhooks/:webhook_id", chain(wh.Delete, identity.Handle))
	router.POST("/api/v1/webhooks/:webhook_id/secret", chain(wh.RegenerateSecret, identity.Handle))
	router.POST("/api/v1/webhooks/:webhook_id/test", chain(wh.Test, identity.Handle))

	// Delivery history and health
	router.GET("/api/v1/webhooks/:webhook_id/deliveries", chain(wh.ListDeliveries, identity.Handle))
	router.GET("/api/v1/webhooks/:webhook_id/stats", chain(wh.Stats, identity.Handle))
	router.POST("/api/v1/deliveries/:delivery_id/retry", chain(wh.RetryDelivery, identity.Handle))

	// Event ingress and discovery
	router.POST("/api/v1/events", chain(wh.Dispatch, identity.Handle))
	router.GET("/api/v1/event-types", wrap(wh.ListEventTypes))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
