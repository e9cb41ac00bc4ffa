package users

import (
	"github.com/google/uuid"

	"github.com/jrsteele09/go-session-service/roles"
)

type User struct {
	ID           uuid.UUID  `json:"id,omitempty"`       // Unique identifier for the user
	Username     string     `json:"username,omitempty"` // Unique username, used for login
	PasswordHash string     `json:"-"`                  // Hashed version of the user's password - never serialize
	Name         string     `json:"name,omitempty"`
	Surname1     string     `json:"surname1,omitempty"`
	Surname2     string     `json:"surname2,omitempty"`
	Role         roles.Role `json:"role,omitempty"`
	Audiences    []string   `json:"audiences,omitempty"` // Service audiences the user's credentials are valid for
	Active       bool       `json:"active"`              // Inactive users cannot log in
	Avatar       string     `json:"avatar,omitempty"`
	Phones       []string   `json:"phones,omitempty"`
	Email        string     `json:"email,omitempty"`
}

// Info is the sanitized projection of a User returned to clients. It never
// carries the password hash or the user's role assignments.
type Info struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name,omitempty"`
	Surname1 string    `json:"surname1,omitempty"`
	Surname2 string    `json:"surname2,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Phones   []string  `json:"phones,omitempty"`
	Email    string    `json:"email,omitempty"`
}

func (u *User) Info() Info {
	return Info{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Surname1: u.Surname1,
		Surname2: u.Surname2,
		Avatar:   u.Avatar,
		Phones:   u.Phones,
		Email:    u.Email,
	}
}
