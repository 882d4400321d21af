package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/blockhub/internal/model"
)

// UserFinder looks a user up by a fragment of their Discord id.
type UserFinder interface {
	FindUser(ctx context.Context, queryID string) (*model.User, error)
}

// UserHandler serves the public user lookup.
type UserHandler struct {
	users  UserFinder
	logger *slog.Logger
}

func NewUserHandler(users UserFinder, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleLookup returns the public profile of the first user whose id
// contains queryId, or null when nobody matches.
//
// HTTP: GET /user?queryId=...
func (h *UserHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindUser(r.Context(), r.URL.Query().Get("queryId"))
	if err != nil {
		writeError(w, err)
		return
	}

	var profile *model.PublicProfile
	if user != nil {
		p := user.Public()
		profile = &p
	}
	writeJSON(w, http.StatusOK, profile)
}
