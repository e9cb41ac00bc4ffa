package redistore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/sessions/redistore"
)

const lifetimeDays = 5

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
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

func newStore(t *testing.T, maxSessions int) (*redistore.Store, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := newFakeClock()
	return redistore.New(client, maxSessions, redistore.WithNowTime(clock.Now)), clock
}

func TestRoundTrip(t *testing.T) {
	store, _ := newStore(t, 3)
	userID := uuid.New()
	ctx := context.Background()

	session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)
	require.Equal(t, "fp-1", got.Fingerprint)
	require.Equal(t, "laptop", got.Device)
}

func TestFingerprintStickiness(t *testing.T) {
	store, _ := newStore(t, 3)
	userID := uuid.New()
	ctx := context.Background()

	first, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)
	second, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.2", "fp-1", "laptop")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.True(t, second.KeyExpirationTime.After(first.KeyExpirationTime))

	count, err := store.Count(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEvictionOrder(t *testing.T) {
	store, _ := newStore(t, 2)
	userID := uuid.New()
	ctx := context.Background()

	a, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-a", "a")
	require.NoError(t, err)
	b, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-b", "b")
	require.NoError(t, err)
	c, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-c", "c")
	require.NoError(t, err)

	_, err = store.Get(ctx, a.ID)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = store.Get(ctx, b.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestSessionCapInvariant(t *testing.T) {
	const maxSessions = 3
	store, _ := newStore(t, maxSessions)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", fmt.Sprintf("fp-%d", i), "laptop")
		require.NoError(t, err)

		count, err := store.Count(ctx, userID)
		require.NoError(t, err)
		require.LessOrEqual(t, count, maxSessions)
	}
}

func TestUpdateKeyRejectsExpired(t *testing.T) {
	store, clock := newStore(t, 3)
	userID := uuid.New()
	ctx := context.Background()

	session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", "fp-1", "laptop")
	require.NoError(t, err)

	clock.Advance(time.Duration(lifetimeDays)*24*time.Hour + time.Hour)

	err = store.UpdateKey(ctx, session.ID, lifetimeDays)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestDeleteAllAndIdempotentDelete(t *testing.T) {
	store, _ := newStore(t, 5)
	userID := uuid.New()
	ctx := context.Background()

	var last uuid.UUID
	for i := 0; i < 3; i++ {
		session, err := store.CreateOrRotate(ctx, userID, lifetimeDays, "10.0.0.1", fmt.Sprintf("fp-%d", i), "laptop")
		require.NoError(t, err)
		last = session.ID
	}

	count, err := store.DeleteAll(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	require.NoError(t, store.Delete(ctx, last))

	_, err = store.Get(ctx, last)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
