package updateuser

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/services/usersvc"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type service interface {
	Update(ctx context.Context, id string, update user.UpdateUserModel) (user.User, error)
}

var validate = validator.New()

// updateUserRequest treats empty strings as absent.
type updateUserRequest struct {
	Name  string `json:"name"  validate:"required_without=Email"`
	Email string `json:"email" validate:"required_without=Name"`
}

func (r *updateUserRequest) toModel() user.UpdateUserModel {
	var m user.UpdateUserModel
	if r.Name != "" {
		m.Name = &r.Name
	}
	if r.Email != "" {
		m.Email = &r.Email
	}

	return m
}

// UpdateUser handles the partial update request.
func UpdateUser(w http.ResponseWriter, r *http.Request, service service) {
	req := updateUserRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, usersvc.ErrNothingToUpdate.Error())
		slog.Warn("Error decoding request body for update user", "error", err)

		return
	}

	if err := validate.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, usersvc.ErrNothingToUpdate.Error())
		slog.Warn("Error validating request body for update user", "error", err)

		return
	}

	updated, err := service.Update(r.Context(), chi.URLParam(r, "id"), req.toModel())
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, updated)
	case errors.Is(err, usersvc.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, usersvc.ErrEmailTaken), errors.Is(err, usersvc.ErrNothingToUpdate):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error updating user", "error", err)
	}
}
