package listusers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
)

type service interface {
	List(ctx context.Context) ([]user.User, error)
}

func ListUsers(w http.ResponseWriter, r *http.Request, service service) {
	users, err := service.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error listing users", "error", err)

		return
	}

	response.JSON(w, http.StatusOK, users)
}
