package getuser

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/services/usersvc"
	"github.com/go-chi/chi/v5"
)

type service interface {
	Get(ctx context.Context, id string) (user.User, error)
}

// GetUser answers 404 for unknown ids; the orders service relies on that.
func GetUser(w http.ResponseWriter, r *http.Request, service service) {
	u, err := service.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, u)
	case errors.Is(err, usersvc.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, "not found")
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error getting user", "error", err)
	}
}
