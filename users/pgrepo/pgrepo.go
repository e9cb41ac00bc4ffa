// Package pgrepo implements users.UserRepo on Postgres. List-valued columns
// (audiences, phones) are stored as JSONB.
package pgrepo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/roles"
	"github.com/jrsteele09/go-session-service/users"
)

var _ users.UserRepo = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func (r *PostgresUserRepo) Create(ctx context.Context, user *users.User) error {
	audiences, phones, err := marshalLists(user)
	if err != nil {
		return errors.Wrap(err, "[pgrepo.Create]")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, name, surname1, surname2, role, audiences, active, avatar, phones, email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Username, user.PasswordHash, user.Name, user.Surname1, user.Surname2,
		string(user.Role), audiences, user.Active, user.Avatar, phones, user.Email)
	return errors.Wrap(err, "[pgrepo.Create]")
}

func (r *PostgresUserRepo) Update(ctx context.Context, user *users.User) error {
	audiences, phones, err := marshalLists(user)
	if err != nil {
		return errors.Wrap(err, "[pgrepo.Update]")
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET username = $1, name = $2, surname1 = $3, surname2 = $4, role = $5,
		        audiences = $6, active = $7, avatar = $8, phones = $9, email = $10
		  WHERE id = $11`,
		user.Username, user.Name, user.Surname1, user.Surname2, string(user.Role),
		audiences, user.Active, user.Avatar, phones, user.Email, user.ID)
	return errors.Wrap(err, "[pgrepo.Update]")
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	return errors.Wrap(err, "[pgrepo.UpdatePassword]")
}

// GetByUsername returns the user for username, or nil if no such user exists.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.getBy(ctx, `username = $1`, username)
}

// GetByID returns the user for id, or nil if no such user exists.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *PostgresUserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&taken)
	if err != nil {
		return false, errors.Wrap(err, "[pgrepo.UsernameTaken]")
	}
	return taken, nil
}

func (r *PostgresUserRepo) getBy(ctx context.Context, where string, arg any) (*users.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, name, surname1, surname2, role, audiences, active, avatar, phones, email
		   FROM users WHERE `+where, arg)

	var (
		user      users.User
		role      string
		audiences []byte
		phones    []byte
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.Surname1,
		&user.Surname2, &role, &audiences, &user.Active, &user.Avatar, &phones, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[pgrepo.getBy]")
	}

	user.Role = roles.Parse(role)
	if err := json.Unmarshal(audiences, &user.Audiences); err != nil {
		return nil, errors.Wrap(err, "[pgrepo.getBy] audiences")
	}
	if err := json.Unmarshal(phones, &user.Phones); err != nil {
		return nil, errors.Wrap(err, "[pgrepo.getBy] phones")
	}
	return &user, nil
}

func marshalLists(user *users.User) (audiences, phones []byte, err error) {
	if audiences, err = json.Marshal(listOrEmpty(user.Audiences)); err != nil {
		return nil, nil, err
	}
	if phones, err = json.Marshal(listOrEmpty(user.Phones)); err != nil {
		return nil, nil, err
	}
	return audiences, phones, nil
}

func listOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
