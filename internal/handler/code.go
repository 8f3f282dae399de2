package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppwm/matcher-server-go/internal/audit"
	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/middleware"
	"github.com/ppwm/matcher-server-go/internal/service"
)

type CodeHandler struct {
	matcher   *service.Matcher
	directory *service.UserDirectory
}

func NewCodeHandler(matcher *service.Matcher, directory *service.UserDirectory) *CodeHandler {
	return &CodeHandler{
		matcher:   matcher,
		directory: directory,
	}
}

// Routes expects IdentityMiddleware to have run. submitLimit wraps the
// submission route only.
func (h *CodeHandler) Routes(submitLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(submitLimit).Post("/code", h.Submit)
	r.Get("/code", h.Show)
	r.Get("/me", h.Me)

	return r
}

type submitCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *CodeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	req, err := decodeSubmission(r)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "must be JSON or form encoded"))
		return
	}

	attempt, err := h.matcher.Reconcile(r.Context(), *ident, req.Email, req.Code)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	if !attempt.Valid() {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventCodeRejected,
			Login:   ident.Login,
			Code:    strings.TrimSpace(req.Code),
			Details: map[string]any{"messages": attempt.Messages()},
		})
		httputil.WriteError(w, apperrors.PairingRejected(attempt.Messages()))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCodeSubmitted,
		Login:   ident.Login,
		Code:    attempt.Code.Value,
		Details: map[string]any{"pairSize": len(attempt.Pair)},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"code":   attempt.Code.Value,
		"user":   formatUser(*attempt.User),
		"pair":   formatPair(attempt.Pair),
		"paired": len(attempt.Pair) > 0,
	})
}

func (h *CodeHandler) Show(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	user, err := h.directory.Current(r.Context(), ident.Login)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if !h.directory.HasCode(user) {
		httputil.WriteError(w, apperrors.NotFound("Code"))
		return
	}

	code, pair, err := h.matcher.Pair(r.Context(), user)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if code == nil {
		httputil.WriteError(w, apperrors.NotFound("Code"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":   code.Value,
		"user":   formatUser(*user),
		"pair":   formatPair(pair),
		"paired": len(pair) > 0,
	})
}

// Me returns the stored user, if any, with form defaults taken from the identity.
func (h *CodeHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	user, err := h.directory.Current(r.Context(), ident.Login)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	resp := map[string]any{
		"login":   ident.Login,
		"hasCode": h.directory.HasCode(user),
		"defaults": map[string]string{
			"email": ident.Email,
			"name":  ident.DisplayName(),
		},
	}
	if user != nil {
		resp["user"] = formatUser(*user)
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeSubmission(r *http.Request) (submitCodeRequest, error) {
	var req submitCodeRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.Code = r.PostForm.Get("code")
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}
