package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ppwm/matcher-server-go/internal/identity"
	"github.com/ppwm/matcher-server-go/internal/model"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Identify(ctx context.Context, token string) (model.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(model.Identity), args.Error(1)
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := GetIdentity(r.Context())
		if ident == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(ident.Login))
	})
}

func TestIdentityMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		src := new(mockSource)
		rec := httptest.NewRecorder()

		NewIdentityMiddleware(src).Handler(identityEcho()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		src.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything)
	})

	t.Run("bearer token", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", mock.Anything, "gho_abc").Return(model.Identity{Login: "alice"}, nil)

		req := httptest.NewRequest("GET", "/api/me", nil)
		req.Header.Set("Authorization", "Bearer gho_abc")
		rec := httptest.NewRecorder()

		NewIdentityMiddleware(src).Handler(identityEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", mock.Anything, "gho_sse").Return(model.Identity{Login: "bob"}, nil)

		rec := httptest.NewRecorder()
		NewIdentityMiddleware(src).Handler(identityEcho()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/events?token=gho_sse", nil))

		assert.Equal(t, "bob", rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", mock.Anything, "bad").Return(model.Identity{}, identity.ErrInvalidToken)

		req := httptest.NewRequest("GET", "/api/me", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()

		NewIdentityMiddleware(src).Handler(identityEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", mock.Anything, "tok").Return(model.Identity{}, errors.New("github: status 503"))

		req := httptest.NewRequest("GET", "/api/me", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()

		NewIdentityMiddleware(src).Handler(identityEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestWithIdentity(t *testing.T) {
	assert.Nil(t, GetIdentity(context.Background()))

	ctx := WithIdentity(context.Background(), model.Identity{Login: "alice"})
	ident := GetIdentity(ctx)
	require.NotNil(t, ident)
	assert.Equal(t, "alice", ident.Login)
}
