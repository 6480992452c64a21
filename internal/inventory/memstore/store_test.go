package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = domain.StockKey{ProductID: "p1", BranchID: "b1"}

func TestWithTx_RollsBackEveryWrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		st, err := s.LockStock(ctx, key, &domain.ProductInfo{ReorderLevel: 4})
		require.NoError(t, err)
		require.NoError(t, st.CommitIn(5))
		require.NoError(t, s.SaveStock(ctx, st))
		require.NoError(t, s.CreateLot(ctx, &domain.Lot{ID: "l1", ProductID: "p1", BranchID: "b1", Received: 5, Available: 5, Active: true}))
		require.NoError(t, s.AppendBinCard(ctx, &domain.BinCardEntry{ID: "e1", ProductID: "p1", BranchID: "b1"}))
		_, err = s.NextSequence(ctx, domain.PrefixGRN, 2026)
		require.NoError(t, err)
		return errors.Conflict("abort")
	})
	require.Error(t, err)

	_, err = s.GetStock(ctx, key)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = s.GetLot(ctx, "l1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	entries, total, err := s.ListBinCard(ctx, domain.BinCardFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, total)

	seq, err := s.NextSequence(ctx, domain.PrefixGRN, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context) error {
			_, _ = s.LockStock(ctx, key, nil)
			panic("boom")
		})
	})

	_, err := s.GetStock(ctx, key)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// the lock was released
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.LockStock(ctx, key, nil)
		return err
	}))
}

func TestLock_TimesOutAsConcurrencyConflict(t *testing.T) {
	s := New(WithLockTimeout(20 * time.Millisecond))
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.LockStock(ctx, key, nil)
			close(held)
			<-done
			return err
		})
	}()
	<-held

	err := s.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.LockStock(ctx, key, nil)
		return err
	})
	close(done)

	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestLock_ReentrantAndNested(t *testing.T) {
	s := New(WithLockTimeout(20 * time.Millisecond))
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.LockStock(ctx, key, nil); err != nil {
			return err
		}
		return s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.LockStock(ctx, key, nil)
			return err
		})
	})
	assert.NoError(t, err)
}

func TestLock_RequiresTransaction(t *testing.T) {
	s := New()
	_, err := s.LockStock(context.Background(), key, nil)
	assert.True(t, errors.Is(err, errors.ErrInternal))
}

func TestSaveLot_RejectsUnbalancedLot(t *testing.T) {
	s := New()
	ctx := context.Background()
	l := testutil.NewFixtureFactory().Lot("p1", "b1", 5, nil)
	require.NoError(t, s.CreateLot(ctx, l))

	l.Available = 6
	err := s.SaveLot(ctx, l)
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
}

func TestLockLots_FEFOOrderAndOnlyStockedLots(t *testing.T) {
	s := New()
	ctx := context.Background()
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateLot(ctx, &domain.Lot{ID: "mar", ProductID: "p1", BranchID: "b1", ExpiryDate: &mar, Received: 1, Available: 1, Active: true}))
	require.NoError(t, s.CreateLot(ctx, &domain.Lot{ID: "jan", ProductID: "p1", BranchID: "b1", ExpiryDate: &jan, Received: 1, Available: 1, Active: true}))
	require.NoError(t, s.CreateLot(ctx, &domain.Lot{ID: "empty", ProductID: "p1", BranchID: "b1", ExpiryDate: &jan, Received: 1, Sold: 1, Active: true}))

	err := s.WithTx(ctx, func(ctx context.Context) error {
		lots, err := s.LockLots(ctx, key)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, "jan", lots[0].ID)
		assert.Equal(t, "mar", lots[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed := testutil.NewFixtureFactory().Product(testutil.WithThresholds(3, 1, 50))
	require.NoError(t, s.UpsertProduct(ctx, seed))

	p, err := s.GetProduct(ctx, seed.ProductID)
	require.NoError(t, err)
	p.ReorderLevel = 99

	again, err := s.GetProduct(ctx, seed.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.ReorderLevel)
}
