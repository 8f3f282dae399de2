package handler

import (
	"net/http"
	"time"

	"github.com/ppwm/matcher-server-go/internal/httputil"
	"github.com/ppwm/matcher-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatUser(u model.User) map[string]any {
	return map[string]any{
		"login": u.Login,
		"name":  u.Name,
		"email": u.Email,
	}
}

func formatPair(users []model.User) []map[string]any {
	pair := make([]map[string]any, 0, len(users))
	for _, u := range users {
		pair = append(pair, formatUser(u))
	}
	return pair
}

func formatListing(c model.CodeListing) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"value":       c.Value,
		"memberCount": c.MemberCount,
		"state":       c.State(),
		"createdAt":   c.CreatedAt.Format(time.RFC3339),
	}
}
