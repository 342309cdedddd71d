package middleware

import (
	"context"
	"net/http"

	apiContext "blockpulse/internal/api/context"
	"blockpulse/internal/pkg/errors"
)

// IdentityMiddleware picks up the caller identity set by the platform
// gateway. Authentication itself happens upstream; by the time a request
// reaches the engine the X-User-ID header is trusted.
type IdentityMiddleware struct{}

func NewIdentityMiddleware() *IdentityMiddleware {
	return &IdentityMiddleware{}
}

func (m *IdentityMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing caller identity", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.UserID, userID)
		next(w, r.WithContext(ctx))
	}
}
