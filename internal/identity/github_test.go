package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubServer(t *testing.T, user map[string]any, emails []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if emails == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubSource_Identify(t *testing.T) {
	ctx := context.Background()

	t.Run("uses profile email", func(t *testing.T) {
		srv := githubServer(t, map[string]any{"login": "alice", "name": "Alice", "email": "a@x.com"}, nil)

		ident, err := NewGitHubSource(srv.URL+"/", srv.Client()).Identify(ctx, "good-token")
		require.NoError(t, err)
		assert.Equal(t, "alice", ident.Login)
		assert.Equal(t, "Alice", ident.Name)
		assert.Equal(t, "a@x.com", ident.Email)
	})

	t.Run("falls back to primary verified email", func(t *testing.T) {
		srv := githubServer(t, map[string]any{"login": "bob"}, []map[string]any{
			{"email": "old@x.com", "primary": false, "verified": true},
			{"email": "b@x.com", "primary": true, "verified": true},
		})

		ident, err := NewGitHubSource(srv.URL, srv.Client()).Identify(ctx, "good-token")
		require.NoError(t, err)
		assert.Equal(t, "b@x.com", ident.Email)
		assert.Equal(t, "bob", ident.DisplayName())
	})

	t.Run("missing email scope leaves email empty", func(t *testing.T) {
		srv := githubServer(t, map[string]any{"login": "carol"}, nil)

		ident, err := NewGitHubSource(srv.URL, srv.Client()).Identify(ctx, "good-token")
		require.NoError(t, err)
		assert.Empty(t, ident.Email)
	})

	t.Run("rejected token", func(t *testing.T) {
		srv := githubServer(t, map[string]any{"login": "alice"}, nil)

		_, err := NewGitHubSource(srv.URL, srv.Client()).Identify(ctx, "bad-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := NewGitHubSource("http://unused", nil).Identify(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPrimaryEmail(t *testing.T) {
	assert.Equal(t, "", primaryEmail(nil))
	assert.Equal(t, "v@x.com", primaryEmail([]githubEmail{
		{Email: "p@x.com", Primary: true},
		{Email: "v@x.com", Verified: true},
	}))
}
