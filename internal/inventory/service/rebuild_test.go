package service_test

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/lock"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedStock returns a stock service sharing f's store whose rebuilds are
// guarded by a redis lock.
func lockedStock(t *testing.T, f *fixture) (*service.StockService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine := service.NewEngine(f.store, nil, lock.New(client, "inventory-service", logger.Nop()), service.Options{
		RetryMaxAttempts:     3,
		RetryInitialInterval: time.Millisecond,
		RetireWritesOff:      true,
		Clock:                f.clock.Now,
	}, logger.Nop())
	return service.NewStockService(engine), mr
}

func TestRebuildAggregate_HeldLockIsConcurrencyConflict(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "B1", "P1", "A1", "2025-06-01", 5)
	stock, mr := lockedStock(t, f)
	k := key("P1", "B1")

	require.NoError(t, mr.Set("inventory-service:rebuild:"+k.String(), "other-replica"))

	_, err := stock.RebuildAggregate(f.ctx, k)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConcurrencyConflict))
	assert.True(t, errors.IsRetryable(err))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONCURRENCY_CONFLICT", appErr.Code)

	mr.Del("inventory-service:rebuild:" + k.String())
	res, err := stock.RebuildAggregate(f.ctx, k)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestRebuildBranch_SkipsAggregatesLockedElsewhere(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "B1", "P1", "A1", "2025-06-01", 5)
	f.receive(t, "B1", "P2", "C1", "2025-06-01", 5)
	stock, mr := lockedStock(t, f)

	require.NoError(t, mr.Set("inventory-service:rebuild:"+key("P1", "B1").String(), "other-replica"))

	repaired, err := stock.RebuildBranch(f.ctx, "B1")
	require.NoError(t, err)
	assert.Empty(t, repaired)
	assert.False(t, mr.Exists("inventory-service:rebuild:"+key("P2", "B1").String()), "other keys were locked and released")
}
