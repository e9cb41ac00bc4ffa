package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/sessions"
	"github.com/jrsteele09/go-session-service/sessions/memstore"
)

const lifetimeDays = 5

// fakeClock advances by a step on every call so LoggedIn timestamps are
// strictly ordered.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(maxSessions int) (*memstore.Store, *fakeClock) {
	clock := newFakeClock()
	return memstore.New(maxSessions, memstore.WithNowTime(clock.Now)), clock
}

func TestCreateFirstSession(t *testing.T) {
	store, _ := newStore(3)
	userID := uuid.New()

	session, err := store.CreateOrRotate(context.Background(), userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)
	require.Equal(t, userID, session.UserID)
	require.Equal(t, "laptop", session.Device)
	require.Equal(t, "10.0.0.1", session.IPAddr)
	require.True(t, session.KeyExpirationTime.After(session.LoggedIn))

	got, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)
}

func TestFingerprintStickiness(t *testing.T) {
	store, _ := newStore(3)
	userID := uuid.New()
	ctx := context.Background()

	first, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	second, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.2", "fp-1", "laptop")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "same fingerprint must reuse the session")
	require.True(t, second.KeyExpirationTime.After(first.KeyExpirationTime), "expiry must move forward on reuse")
	require.Equal(t, "10.0.0.2", second.IPAddr)

	count, err := store.Count(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSessionCapInvariant(t *testing.T) {
	const maxSessions = 3
	store, _ := newStore(maxSessions)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", fmt.Sprintf("fp-%d", i), "laptop")
		require.NoError(t, err)

		count, err := store.Count(ctx, userID)
		require.NoError(t, err)
		require.LessOrEqual(t, count, maxSessions)
	}
}

func TestEvictionOrder(t *testing.T) {
	store, _ := newStore(2)
	userID := uuid.New()
	ctx := context.Background()

	a, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-a", "a")
	require.NoError(t, err)
	b, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-b", "b")
	require.NoError(t, err)
	c, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-c", "c")
	require.NoError(t, err)

	_, err = store.Get(ctx, a.ID)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "oldest session must be evicted")

	_, err = store.Get(ctx, b.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestAtCapRefreshesMatchingFingerprint(t *testing.T) {
	store, _ := newStore(2)
	userID := uuid.New()
	ctx := context.Background()

	a, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-a", "a")
	require.NoError(t, err)
	b, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-b", "b")
	require.NoError(t, err)

	// fp-b matches a non-oldest session, so the login refreshes it instead
	// of evicting fp-a.
	again, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.9", "fp-b", "b")
	require.NoError(t, err)
	require.Equal(t, b.ID, again.ID)

	_, err = store.Get(ctx, a.ID)
	require.NoError(t, err)
}

func TestUpdateKeyExtendsUnexpired(t *testing.T) {
	store, clock := newStore(3)
	userID := uuid.New()
	ctx := context.Background()

	session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, store.UpdateKey(ctx, session.ID, lifetimeDays))

	updated, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, updated.KeyExpirationTime.After(session.KeyExpirationTime))
}

func TestUpdateKeyRejectsExpired(t *testing.T) {
	store, clock := newStore(3)
	userID := uuid.New()
	ctx := context.Background()

	session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	clock.Advance(sessions.Lifetime(lifetimeDays) + time.Hour)

	err = store.UpdateKey(ctx, session.ID, lifetimeDays)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	// Row must not be revived or mutated.
	unchanged, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.KeyExpirationTime, unchanged.KeyExpirationTime)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newStore(3)
	userID := uuid.New()
	ctx := context.Background()

	session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, session.ID))
	require.NoError(t, store.Delete(ctx, session.ID))

	_, err = store.Get(ctx, session.ID)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestDeleteAllReturnsCount(t *testing.T) {
	store, _ := newStore(5)
	userID := uuid.New()
	otherID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", fmt.Sprintf("fp-%d", i), "laptop")
		require.NoError(t, err)
	}
	other, err := store.CreateOrRotate(ctx, otherID, lifetimeDays, "10.0.0.1", "fp-x", "phone")
	require.NoError(t, err)

	count, err := store.DeleteAll(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	// Unrelated user untouched.
	_, err = store.Get(ctx, other.ID)
	require.NoError(t, err)

	count, err = store.DeleteAll(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestConcurrentLoginsKeepInvariant(t *testing.T) {
	const maxSessions = 3
	store := memstore.New(maxSessions)
	userID := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", fmt.Sprintf("fp-%d", n), "laptop")
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := store.Count(ctx, userID)
	require.NoError(t, err)
	require.LessOrEqual(t, count, maxSessions)
}
