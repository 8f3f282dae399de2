package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ppwm/matcher-server-go/internal/audit"
	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/identity"
	"github.com/ppwm/matcher-server-go/internal/model"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

func GetIdentity(ctx context.Context) *model.Identity {
	if ident, ok := ctx.Value(IdentityContextKey).(*model.Identity); ok {
		return ident
	}
	return nil
}

func WithIdentity(ctx context.Context, ident model.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, &ident)
}

// IdentityMiddleware resolves the bearer token to a provider identity.
type IdentityMiddleware struct {
	source identity.Source
}

func NewIdentityMiddleware(source identity.Source) *IdentityMiddleware {
	return &IdentityMiddleware{source: source}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		ident, err := m.source.Identify(r.Context(), token)
		if errors.Is(err, identity.ErrInvalidToken) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid token"))
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("identity middleware: provider error")
			httputil.WriteError(w, apperrors.External("identity provider", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

// extractToken accepts a query token for EventSource clients, which cannot set headers.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
