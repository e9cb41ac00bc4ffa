// Package sessions owns the per-user session table: the session model,
// the Store contract, and the create-or-rotate decision shared by every
// storage backend.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session binds a user to a long-lived opaque identifier, an expiry and a
// client fingerprint. Session IDs are UUIDv7 so they sort by creation time.
type Session struct {
	ID                uuid.UUID `json:"session_id"`
	UserID            uuid.UUID `json:"user_id"`
	LoggedIn          time.Time `json:"logged_in"`
	KeyExpirationTime time.Time `json:"key_expiration_time"`
	IPAddr            string    `json:"ip_addr"`
	Fingerprint       string    `json:"-"`
	Device            string    `json:"device"`
}

// IsExpired reports whether the session key has expired at the given time.
func (s Session) IsExpired(now time.Time) bool {
	return !s.KeyExpirationTime.After(now)
}

// Store is the session table contract. All operations are safe for
// concurrent use; CreateOrRotate serializes per user so the rotation
// algorithm never races with itself.
type Store interface {
	// CreateOrRotate applies the rotation algorithm for the user:
	// fingerprint-sticky reuse when an existing session matches the
	// caller's fingerprint, eviction of the oldest session when the
	// per-user cap is exceeded, a fresh insert otherwise.
	CreateOrRotate(ctx context.Context, userID uuid.UUID, lifetimeDays int, ipAddr, fingerprint, device string) (Session, error)

	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID uuid.UUID) (Session, error)

	// UpdateKey extends the key expiration to now+lifetime, but only for
	// sessions that have not already expired; expired sessions fail with
	// ErrSessionExpired and are left untouched.
	UpdateKey(ctx context.Context, sessionID uuid.UUID, lifetimeDays int) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteAll removes every session for the user and returns how many
	// were removed.
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)

	// Count returns the number of live rows for the user.
	Count(ctx context.Context, userID uuid.UUID) (int, error)
}

// Lifetime converts a session lifetime in days to a duration.
func Lifetime(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// New builds a fresh session for the user.
func New(userID uuid.UUID, lifetimeDays int, ipAddr, fingerprint, device string, now time.Time) Session {
	return Session{
		ID:                uuid.Must(uuid.NewV7()),
		UserID:            userID,
		LoggedIn:          now,
		KeyExpirationTime: now.Add(Lifetime(lifetimeDays)),
		IPAddr:            ipAddr,
		Fingerprint:       fingerprint,
		Device:            device,
	}
}

// Refresh updates a matched session in place: new address, new login time,
// new expiry. The session ID and device label survive, which is what makes
// repeated logins from the same client fingerprint-sticky.
func Refresh(s *Session, ipAddr string, lifetimeDays int, now time.Time) {
	s.IPAddr = ipAddr
	s.LoggedIn = now
	s.KeyExpirationTime = now.Add(Lifetime(lifetimeDays))
}
