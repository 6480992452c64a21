package lock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/medlan/medlan-backend/pkg/config"
	apperrors "github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "inventory", logger.Nop()), mr
}

func TestLocker_ExcludesConcurrentHolder(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	err := l.Do(ctx, "rebuild", time.Minute, func(ctx context.Context) error {
		assert.True(t, mr.Exists("inventory:rebuild"))

		inner := l.Do(ctx, "rebuild", time.Minute, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrNotObtained)
		return nil
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists("inventory:rebuild"), "lock is released after fn returns")
}

func TestLocker_HeldKeyIsConcurrencyConflict(t *testing.T) {
	l, mr := newLocker(t)
	require.NoError(t, mr.Set("inventory:rebuild", "other-replica"))

	err := l.Do(context.Background(), "rebuild", time.Minute, func(context.Context) error {
		t.Fatal("fn must not run while another instance holds the key")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotObtained)
	assert.True(t, apperrors.IsRetryable(err))

	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, "CONCURRENCY_CONFLICT", appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestLocker_RefreshesLeaseWhileRunning(t *testing.T) {
	l, mr := newLocker(t)
	ttl := 200 * time.Millisecond

	err := l.Do(context.Background(), "sweep", ttl, func(context.Context) error {
		// Leave 50ms on the lease, then give the refresher time to renew it.
		mr.FastForward(150 * time.Millisecond)
		time.Sleep(250 * time.Millisecond)

		mr.FastForward(100 * time.Millisecond)
		assert.True(t, mr.Exists("inventory:sweep"), "lease outlives its original ttl")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("inventory:sweep"))
}

func TestLocker_ReleasesAfterError(t *testing.T) {
	l, mr := newLocker(t)

	err := l.Do(context.Background(), "sweep", time.Minute, func(context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, mr.Exists("inventory:sweep"))
}

func TestLocker_NilRunsUnguarded(t *testing.T) {
	var l *Locker
	ran := false
	require.NoError(t, l.Do(context.Background(), "k", time.Second, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}
