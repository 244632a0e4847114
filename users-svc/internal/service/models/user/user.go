package user

import "time"

// User is the authoritative user record and the payload of user lifecycle events.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// UpdateUserModel holds the fields of a partial update; nil fields are left unchanged.
type UpdateUserModel struct {
	Name  *string
	Email *string
}

// IsEmpty reports whether the update changes nothing.
func (m UpdateUserModel) IsEmpty() bool {
	return m.Name == nil && m.Email == nil
}

// Apply returns u with the update applied and stamped at the given time.
func (m UpdateUserModel) Apply(u User, at time.Time) User {
	if m.Name != nil {
		u.Name = *m.Name
	}
	if m.Email != nil {
		u.Email = *m.Email
	}
	u.UpdatedAt = &at

	return u
}
