package user

import (
	"errors"
	"time"
)

var ErrMissingID = errors.New("user payload has no id")

// User represents a user record received from the users service's lifecycle events.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// Validate checks that the payload can be keyed.
func (u User) Validate() error {
	if u.ID == "" {
		return ErrMissingID
	}

	return nil
}
