package createuser

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/services/usersvc"
	"github.com/go-playground/validator/v10"
)

type service interface {
	Create(ctx context.Context, name, email string) (user.User, error)
}

var validate = validator.New()

type createUserRequest struct {
	Name  string `json:"name"  validate:"required"`
	Email string `json:"email" validate:"required"`
}

// Validate validates the create user request.
func (r *createUserRequest) Validate() error {
	return validate.Struct(r)
}

// CreateUser handles the create user request.
func CreateUser(w http.ResponseWriter, r *http.Request, service service) {
	req := createUserRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, usersvc.ErrInvalidInput.Error())
		slog.Warn("Error decoding request body for create user", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, usersvc.ErrInvalidInput.Error())
		slog.Warn("Error validating request body for create user", "error", err)

		return
	}

	created, err := service.Create(r.Context(), req.Name, req.Email)
	switch {
	case err == nil:
		response.JSON(w, http.StatusCreated, created)
	case errors.Is(err, usersvc.ErrEmailTaken), errors.Is(err, usersvc.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error creating user", "error", err)
	}
}
