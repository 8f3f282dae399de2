package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ppwm/matcher-server-go/internal/audit"
	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	redisclient "github.com/ppwm/matcher-server-go/internal/redis"
	"github.com/ppwm/matcher-server-go/internal/service"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitResult
}

// SubmitRateLimitMiddleware caps code submissions per login. It must run
// after IdentityMiddleware.
type SubmitRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
}

func NewSubmitRateLimitMiddleware(limiter Limiter, limit int, window time.Duration) *SubmitRateLimitMiddleware {
	return &SubmitRateLimitMiddleware{limiter: limiter, limit: limit, window: window}
}

func (m *SubmitRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := GetIdentity(r.Context())
		if ident == nil || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		res := m.limiter.Allow(r.Context(), redisclient.SubmitLimitKey(ident.Login), m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Login: ident.Login})
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
