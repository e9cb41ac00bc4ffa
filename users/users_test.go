package users_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/users"
)

func TestPasswordHashDependsOnUser(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	aliceHash := users.HashPassword("hunter2", alice)
	bobHash := users.HashPassword("hunter2", bob)

	require.NotEqual(t, aliceHash, bobHash)
	require.True(t, users.CheckPasswordHash("hunter2", alice, aliceHash))
	require.False(t, users.CheckPasswordHash("hunter2", bob, aliceHash))
	require.False(t, users.CheckPasswordHash("wrong", alice, aliceHash))
}

func TestInfoOmitsSecrets(t *testing.T) {
	user := users.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: "secret-hash",
		Name:         "Alice",
		Email:        "alice@example.com",
	}

	info := user.Info()
	require.Equal(t, user.Username, info.Username)
	require.Equal(t, user.Email, info.Email)
}
