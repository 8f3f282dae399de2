package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/service"
	"github.com/ppwm/matcher-server-go/internal/util"
)

type ProfileHandler struct {
	directory *service.UserDirectory
}

func NewProfileHandler(directory *service.UserDirectory) *ProfileHandler {
	return &ProfileHandler{directory: directory}
}

func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	login := util.SanitizeLogin(chi.URLParam(r, "login"))

	user, err := h.directory.Current(r.Context(), login)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if user == nil {
		httputil.WriteError(w, apperrors.New(apperrors.ErrCodeNotFound, "No such user"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"login":   user.Login,
		"message": fmt.Sprintf("Hello %s", user.Login),
	})
}
