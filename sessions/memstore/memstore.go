// Package memstore is the in-memory session store. It is the default
// backend and the one the test suites run against.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/sessions"
)

var _ sessions.Store = (*Store)(nil)

type Store struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]sessions.Session
	maxSessions int
	userLocks   sessions.KeyedLock
	nowTime     func() time.Time
}

// Option modifies the Store instance.
type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func New(maxSessions int, options ...Option) *Store {
	s := &Store{
		sessions:    make(map[uuid.UUID]sessions.Session),
		maxSessions: maxSessions,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) CreateOrRotate(ctx context.Context, userID uuid.UUID, lifetimeDays int, ipAddr, fingerprint, device string) (sessions.Session, error) {
	s.userLocks.Lock(userID)
	defer s.userLocks.Unlock(userID)

	current := s.listByUser(userID)
	now := s.nowTime()

	plan := sessions.PlanRotation(current, s.maxSessions, fingerprint)
	switch {
	case plan.Refresh != nil:
		refreshed := *plan.Refresh
		sessions.Refresh(&refreshed, ipAddr, lifetimeDays, now)
		s.put(refreshed)
		return refreshed, nil
	case plan.Evict != nil:
		s.remove(plan.Evict.ID)
		fresh := sessions.New(userID, lifetimeDays, ipAddr, fingerprint, device, now)
		s.put(fresh)
		log.Warn().
			Str("user_id", userID.String()).
			Str("evicted", plan.Evict.ID.String()).
			Str("replacement", fresh.ID.String()).
			Int("max_sessions", s.maxSessions).
			Msg("session cap exceeded, oldest session evicted")
		return fresh, nil
	default:
		fresh := sessions.New(userID, lifetimeDays, ipAddr, fingerprint, device, now)
		s.put(fresh)
		return fresh, nil
	}
}

func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return sessions.Session{}, apperrors.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) UpdateKey(ctx context.Context, sessionID uuid.UUID, lifetimeDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	now := s.nowTime()
	if session.IsExpired(now) {
		return apperrors.ErrSessionExpired
	}
	session.KeyExpirationTime = now.Add(sessions.Lifetime(lifetimeDays))
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.remove(sessionID)
	log.Info().Str("session_id", sessionID.String()).Msg("session deleted")
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			count++
		}
	}
	log.Info().Str("user_id", userID.String()).Int64("count", count).Msg("all sessions deleted for user")
	return count, nil
}

func (s *Store) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return len(s.listByUser(userID)), nil
}

func (s *Store) put(session sessions.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *Store) remove(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// listByUser returns the user's sessions ordered by LoggedIn ascending,
// session ID as the tiebreak (IDs are time-ordered UUIDv7).
func (s *Store) listByUser(userID uuid.UUID) []sessions.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []sessions.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			list = append(list, session)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LoggedIn.Equal(list[j].LoggedIn) {
			return bytes.Compare(list[i].ID[:], list[j].ID[:]) < 0
		}
		return list[i].LoggedIn.Before(list[j].LoggedIn)
	})
	return list
}
