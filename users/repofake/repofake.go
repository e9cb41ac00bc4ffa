// Package repofake provides an in-memory UserRepo used by unit tests and by
// the memory store configuration.
package repofake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-session-service/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users     map[uuid.UUID]*users.User
	usernames map[string]uuid.UUID
	lock      sync.RWMutex
}

func New() *FakeUserRepo {
	return &FakeUserRepo{
		users:     make(map[uuid.UUID]*users.User),
		usernames: make(map[string]uuid.UUID),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u := *user
	ur.users[u.ID] = &u
	ur.usernames[u.Username] = u.ID
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	existing, ok := ur.users[user.ID]
	if !ok {
		return nil
	}
	delete(ur.usernames, existing.Username)

	u := *user
	ur.users[u.ID] = &u
	ur.usernames[u.Username] = u.ID
	return nil
}

func (ur *FakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user, ok := ur.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernames[username]
	if !ok {
		return nil, nil
	}
	u := *ur.users[id]
	return &u, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (ur *FakeUserRepo) UsernameTaken(_ context.Context, username string) (bool, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	_, ok := ur.usernames[username]
	return ok, nil
}
