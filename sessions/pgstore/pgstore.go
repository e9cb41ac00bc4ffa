// Package pgstore implements the session Store on Postgres. Rotation reads
// the user's rows under SELECT ... FOR UPDATE so concurrent logins for the
// same user serialize on the database rather than in process.
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/sessions"
)

var _ sessions.Store = (*Store)(nil)

type Store struct {
	db          *sql.DB
	maxSessions int
	nowTime     func() time.Time
}

type Option func(*Store)

// WithNowTime replaces the clock, used by unit tests.
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func New(db *sql.DB, maxSessions int, options ...Option) *Store {
	store := &Store{
		db:          db,
		maxSessions: maxSessions,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

func (s *Store) CreateOrRotate(ctx context.Context, userID uuid.UUID, lifetimeDays int, ipAddr, fingerprint, device string) (sessions.Session, error) {
	var created sessions.Session

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := listByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		plan := sessions.PlanRotation(current, s.maxSessions, fingerprint)
		now := s.nowTime()

		if plan.Refresh != nil {
			refreshed := *plan.Refresh
			sessions.Refresh(&refreshed, ipAddr, lifetimeDays, now)
			if err := updateSession(ctx, tx, refreshed); err != nil {
				return err
			}
			created = refreshed
			return nil
		}

		if plan.Evict != nil {
			if err := deleteSession(ctx, tx, plan.Evict.ID); err != nil {
				return err
			}
		}

		created = sessions.New(userID, lifetimeDays, ipAddr, fingerprint, device, now)
		if err := insertSession(ctx, tx, created); err != nil {
			return err
		}
		if plan.Evict != nil {
			log.Warn().
				Str("user_id", userID.String()).
				Str("evicted", plan.Evict.ID.String()).
				Str("replacement", created.ID.String()).
				Int("max_sessions", s.maxSessions).
				Msg("session cap exceeded, oldest session evicted")
		}
		return nil
	})
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[pgstore.CreateOrRotate]")
	}
	return created, nil
}

func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (sessions.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, logged_in, key_expiration_time, ip_addr, fingerprint, device
		   FROM sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sessions.Session{}, apperrors.ErrSessionNotFound
		}
		return sessions.Session{}, errors.Wrap(err, "[pgstore.Get]")
	}
	return session, nil
}

func (s *Store) UpdateKey(ctx context.Context, sessionID uuid.UUID, lifetimeDays int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var expiration time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT key_expiration_time FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).
			Scan(&expiration)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrSessionNotFound
			}
			return err
		}

		now := s.nowTime()
		if !expiration.After(now) {
			return apperrors.ErrSessionExpired
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET key_expiration_time = $1 WHERE id = $2`,
			now.Add(sessions.Lifetime(lifetimeDays)), sessionID)
		return err
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) || apperrors.Is(err, apperrors.ErrSessionExpired) {
			return err
		}
		return errors.Wrap(err, "[pgstore.UpdateKey]")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return errors.Wrap(err, "[pgstore.Delete]")
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[pgstore.DeleteAll]")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "[pgstore.DeleteAll] result.RowsAffected")
	}
	return count, nil
}

func (s *Store) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "[pgstore.Count]")
	}
	return count, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func listByUserForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) ([]sessions.Session, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, logged_in, key_expiration_time, ip_addr, fingerprint, device
		   FROM sessions WHERE user_id = $1 ORDER BY logged_in ASC, id ASC FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []sessions.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, session)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (sessions.Session, error) {
	var session sessions.Session
	err := row.Scan(&session.ID, &session.UserID, &session.LoggedIn, &session.KeyExpirationTime,
		&session.IPAddr, &session.Fingerprint, &session.Device)
	return session, err
}

func insertSession(ctx context.Context, tx *sql.Tx, session sessions.Session) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, logged_in, key_expiration_time, ip_addr, fingerprint, device)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.UserID, session.LoggedIn, session.KeyExpirationTime,
		session.IPAddr, session.Fingerprint, session.Device)
	return err
}

func updateSession(ctx context.Context, tx *sql.Tx, session sessions.Session) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET logged_in = $1, key_expiration_time = $2, ip_addr = $3 WHERE id = $4`,
		session.LoggedIn, session.KeyExpirationTime, session.IPAddr, session.ID)
	return err
}

func deleteSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}
