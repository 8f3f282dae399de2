package middleware

import (
	"net/http"

	"github.com/ppwm/matcher-server-go/internal/audit"
	"github.com/ppwm/matcher-server-go/internal/config"
	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/util"
)

const adminRealm = `Basic realm="Restricted Area"`

// AdminAuthMiddleware guards the admin routes with HTTP basic auth.
// With no password hash configured every request is refused.
type AdminAuthMiddleware struct {
	creds config.AdminCredentials
}

func NewAdminAuthMiddleware(creds config.AdminCredentials) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{creds: creds}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.creds.PasswordHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin access is disabled"))
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", adminRealm)
			httputil.WriteError(w, apperrors.Unauthorized("Not authorized"))
			return
		}

		userOK := util.ConstantTimeEqual(username, m.creds.Username)
		passOK := util.CheckPasswordHash(password, m.creds.PasswordHash)
		if !userOK || !passOK {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAdminAuthFailure,
				Details: map[string]any{"username": username},
			})
			w.Header().Set("WWW-Authenticate", adminRealm)
			httputil.WriteError(w, apperrors.Unauthorized("Not authorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
