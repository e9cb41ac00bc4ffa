// Package redistore is a Redis-backed session store. Each session lives in
// a JSON value keyed by session ID; a per-user set indexes the user's
// session IDs. The read-decide-write rotation sequence is serialized with
// an in-process keyed lock, matching the single-node semantics the service
// assumes.
package redistore

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/sessions"
)

const keyPrefix = "session"
const userKeyPrefix = "usersessions"

// ttlGrace keeps expired rows readable for a short window so UpdateKey can
// answer ErrSessionExpired instead of ErrSessionNotFound.
const ttlGrace = time.Hour

var _ sessions.Store = (*Store)(nil)

type Store struct {
	client      redis.UniversalClient
	maxSessions int
	userLocks   sessions.KeyedLock
	nowTime     func() time.Time
}

// record is the persisted shape; the domain model hides the fingerprint
// from JSON serialization, the store must not.
type record struct {
	ID                uuid.UUID `json:"session_id"`
	UserID            uuid.UUID `json:"user_id"`
	LoggedIn          time.Time `json:"logged_in"`
	KeyExpirationTime time.Time `json:"key_expiration_time"`
	IPAddr            string    `json:"ip_addr"`
	Fingerprint       string    `json:"fingerprint"`
	Device            string    `json:"device"`
}

func toRecord(s sessions.Session) record {
	return record(s)
}

func (r record) session() sessions.Session {
	return sessions.Session(r)
}

// Option modifies the Store instance.
type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func New(client redis.UniversalClient, maxSessions int, options ...Option) *Store {
	s := &Store{
		client:      client,
		maxSessions: maxSessions,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func sessionKey(id uuid.UUID) string {
	return keyPrefix + ":" + id.String()
}

func userKey(userID uuid.UUID) string {
	return userKeyPrefix + ":" + userID.String()
}

func (s *Store) CreateOrRotate(ctx context.Context, userID uuid.UUID, lifetimeDays int, ipAddr, fingerprint, device string) (sessions.Session, error) {
	s.userLocks.Lock(userID)
	defer s.userLocks.Unlock(userID)

	current, err := s.listByUser(ctx, userID)
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[redistore.CreateOrRotate] listByUser")
	}
	now := s.nowTime()

	plan := sessions.PlanRotation(current, s.maxSessions, fingerprint)
	switch {
	case plan.Refresh != nil:
		refreshed := *plan.Refresh
		sessions.Refresh(&refreshed, ipAddr, lifetimeDays, now)
		if err := s.put(ctx, refreshed); err != nil {
			return sessions.Session{}, err
		}
		return refreshed, nil
	case plan.Evict != nil:
		if err := s.remove(ctx, plan.Evict.ID, userID); err != nil {
			return sessions.Session{}, err
		}
		fresh := sessions.New(userID, lifetimeDays, ipAddr, fingerprint, device, now)
		if err := s.put(ctx, fresh); err != nil {
			return sessions.Session{}, err
		}
		log.Warn().
			Str("user_id", userID.String()).
			Str("evicted", plan.Evict.ID.String()).
			Str("replacement", fresh.ID.String()).
			Int("max_sessions", s.maxSessions).
			Msg("session cap exceeded, oldest session evicted")
		return fresh, nil
	default:
		fresh := sessions.New(userID, lifetimeDays, ipAddr, fingerprint, device, now)
		if err := s.put(ctx, fresh); err != nil {
			return sessions.Session{}, err
		}
		return fresh, nil
	}
}

func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (sessions.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return sessions.Session{}, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[redistore.Get] client.Get")
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return sessions.Session{}, errors.Wrap(err, "[redistore.Get] unmarshal")
	}
	return rec.session(), nil
}

func (s *Store) UpdateKey(ctx context.Context, sessionID uuid.UUID, lifetimeDays int) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	now := s.nowTime()
	if session.IsExpired(now) {
		return apperrors.ErrSessionExpired
	}
	session.KeyExpirationTime = now.Add(sessions.Lifetime(lifetimeDays))
	return s.put(ctx, session)
}

func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.remove(ctx, sessionID, session.UserID); err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID.String()).Msg("session deleted")
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "[redistore.DeleteAll] SMembers")
	}

	var count int64
	for _, raw := range ids {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			continue
		}
		deleted, delErr := s.client.Del(ctx, sessionKey(id)).Result()
		if delErr != nil {
			return count, errors.Wrap(delErr, "[redistore.DeleteAll] Del")
		}
		count += deleted
	}
	if err := s.client.Del(ctx, userKey(userID)).Err(); err != nil {
		return count, errors.Wrap(err, "[redistore.DeleteAll] Del index")
	}
	log.Info().Str("user_id", userID.String()).Int64("count", count).Msg("all sessions deleted for user")
	return count, nil
}

func (s *Store) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	list, err := s.listByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *Store) put(ctx context.Context, session sessions.Session) error {
	raw, err := json.Marshal(toRecord(session))
	if err != nil {
		return errors.Wrap(err, "[redistore.put] marshal")
	}
	ttl := time.Until(session.KeyExpirationTime) + ttlGrace

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.ID.String())
	pipe.Expire(ctx, userKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[redistore.put] pipeline")
	}
	return nil
}

func (s *Store) remove(ctx context.Context, sessionID, userID uuid.UUID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, userKey(userID), sessionID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[redistore.remove] pipeline")
	}
	return nil
}

// listByUser resolves the user's index set to sessions ordered by LoggedIn
// ascending. Index entries whose session value has already expired out of
// Redis are pruned as they are encountered.
func (s *Store) listByUser(ctx context.Context, userID uuid.UUID) ([]sessions.Session, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[redistore.listByUser] SMembers")
	}

	var list []sessions.Session
	for _, raw := range ids {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			continue
		}
		session, getErr := s.Get(ctx, id)
		if getErr != nil {
			if apperrors.Is(getErr, apperrors.ErrSessionNotFound) {
				_ = s.client.SRem(ctx, userKey(userID), raw).Err()
				continue
			}
			return nil, getErr
		}
		list = append(list, session)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LoggedIn.Equal(list[j].LoggedIn) {
			return bytes.Compare(list[i].ID[:], list[j].ID[:]) < 0
		}
		return list[i].LoggedIn.Before(list[j].LoggedIn)
	})
	return list, nil
}
