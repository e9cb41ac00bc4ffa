package users

import (
	"context"

	"github.com/google/uuid"
)

// UserRepo is the persistence boundary for user accounts. Lookups return
// (nil, nil) when no matching user exists; errors are reserved for storage
// failures.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
}
