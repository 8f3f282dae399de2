package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{"pairing rejected", apperrors.PairingRejected([]string{"Unknown code, try again"}), http.StatusUnprocessableEntity, apperrors.ErrCodeValidation},
		{"already paired", apperrors.AlreadyPaired(), http.StatusUnprocessableEntity, apperrors.ErrCodeAlreadyPaired},
		{"missing field", apperrors.MissingRequired("code"), http.StatusBadRequest, apperrors.ErrCodeMissingRequired},
		{"unauthorized", apperrors.Unauthorized("Invalid token"), http.StatusUnauthorized, apperrors.ErrCodeUnauthorized},
		{"not found", apperrors.NotFound("Code"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"rate limited", apperrors.RateLimitExceeded(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded},
		{"external", apperrors.External("github", errors.New("timeout")), http.StatusBadGateway, apperrors.ErrCodeExternal},
		{"database", apperrors.Database(errors.New("conn reset")), http.StatusInternalServerError, apperrors.ErrCodeDatabase},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.Database(errors.New("password authentication failed")))

	assert.NotContains(t, rec.Body.String(), "password authentication")
}

func TestWriteError_Details(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.PairingRejected([]string{"Email can't be blank", "Unknown code, try again"}))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{"Email can't be blank", "Unknown code, try again"}, body["details"])
}
