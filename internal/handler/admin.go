package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppwm/matcher-server-go/internal/audit"
	"github.com/ppwm/matcher-server-go/internal/config"
	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/middleware"
	"github.com/ppwm/matcher-server-go/internal/service"
)

type AdminHandler struct {
	registry *service.CodeRegistry
	auth     func(http.Handler) http.Handler
}

func NewAdminHandler(registry *service.CodeRegistry, auth func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		auth:     auth,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.auth)

	r.With(middleware.NewBodyLimitMiddleware(config.ImportMaxBodySize).Handler).
		Post("/codes/import", h.ImportCodes)
	r.Get("/codes", h.ListCodes)

	return r
}

// ImportCodes accepts {"codes":[...]}, a form field "codes", or a plain
// newline-separated body.
func (h *AdminHandler) ImportCodes(w http.ResponseWriter, r *http.Request) {
	values, err := importValues(r)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}

	codes, err := h.registry.Import(r.Context(), values)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCodesImported,
		Details: map[string]any{"count": len(codes)},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(codes),
	})
}

func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	codes, total, err := h.registry.Listing(r.Context(), p.Limit, p.Offset)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	items := make([]map[string]any, 0, len(codes))
	for _, c := range codes {
		items = append(items, formatListing(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"codes":  items,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

func importValues(r *http.Request) ([]string, error) {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Codes []string `json:"codes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return req.Codes, nil

	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"),
		strings.HasPrefix(contentType, "multipart/form-data"):
		return service.ImportText(r.FormValue("codes")), nil

	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return service.ImportText(string(body)), nil
	}
}
