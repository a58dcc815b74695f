package auth

import (
	"chat-presence/domain"
	"chat-presence/errors"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// UserFromRequest authenticates a request before the WebSocket upgrade.
// The token is read from the "token" query parameter, browsers can't set
// headers on a WebSocket handshake, then from "Authorization: Bearer".
func (m *TokenManager) UserFromRequest(r *http.Request) (*CustomClaims, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenStr == "" {
		return nil, errors.ErrMissingToken
	}
	return m.ValidateToken(tokenStr)
}

// Middleware rejects unauthenticated requests with 401 and injects the
// user identity into the request context for downstream handlers.
func (m *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.UserFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, domain.UserID(claims.UserID))
		ctx = context.WithValue(ctx, RolesKey, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the identity injected by Middleware.
func UserFromContext(ctx context.Context) (domain.UserID, bool) {
	user, ok := ctx.Value(UserIDKey).(domain.UserID)
	return user, ok
}
