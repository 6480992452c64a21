package domain

import (
	"testing"
	"time"

	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchStock_Arithmetic(t *testing.T) {
	s := NewBranchStock("p1", "b1", &ProductInfo{ReorderLevel: 5, MinimumStock: 2})

	require.NoError(t, s.CommitIn(10))
	require.NoError(t, s.Reserve(4))
	assert.Equal(t, 10, s.OnHand)
	assert.Equal(t, 6, s.Available)
	assert.Equal(t, 4, s.Allocated)

	require.NoError(t, s.Release(1))
	require.NoError(t, s.ConsumeReserved(3))
	require.NoError(t, s.CommitOut(2))
	assert.Equal(t, 5, s.OnHand)
	assert.Equal(t, 5, s.Available)
	assert.Equal(t, 0, s.Allocated)
	assert.True(t, s.Consistent())
	assert.True(t, s.LowStock())
}

func TestBranchStock_NeverGoesNegative(t *testing.T) {
	s := NewBranchStock("p1", "b1", nil)
	require.NoError(t, s.CommitIn(3))

	assert.True(t, errors.Is(s.Reserve(4), errors.ErrInsufficientStock))
	assert.True(t, errors.Is(s.CommitOut(4), errors.ErrInsufficientStock))
	assert.True(t, errors.Is(s.Release(1), errors.ErrBusinessRule))
	assert.True(t, errors.Is(s.ConsumeReserved(1), errors.ErrBusinessRule))
	assert.Equal(t, 3, s.Available)
	assert.False(t, s.LowStock(), "no reorder level, no low stock")
}

func TestBranchStock_CheckAndRebuild(t *testing.T) {
	a := lot("a", "2025-01-01", 5)
	b := lot("b", "2025-02-01", 5)
	require.NoError(t, b.Reserve(2))

	s := NewBranchStock("p1", "b1", nil)
	s.OnHand, s.Available, s.Allocated = 10, 8, 2
	assert.NoError(t, s.CheckAgainstLots([]*Lot{a, b}))

	s.Available = 9
	s.OnHand = 11
	err := s.CheckAgainstLots([]*Lot{a, b})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIntegrityDrift))

	assert.True(t, s.RebuildFrom([]*Lot{a, b}))
	assert.Equal(t, 8, s.Available)
	assert.Equal(t, 10, s.OnHand)
	assert.False(t, s.RebuildFrom([]*Lot{a, b}), "second rebuild is a no-op")
}

func TestBranchStock_Post(t *testing.T) {
	s := NewBranchStock("p1", "b1", nil)
	at := time.Now()

	in := s.Post("e1", Movement{Type: MovementGRN, ReferenceID: "grn", QuantityIn: 10}, "u", at)
	out := s.Post("e2", Movement{Type: MovementSale, ReferenceID: "sale", QuantityOut: 4}, "u", at)

	assert.Equal(t, 10, in.Balance)
	assert.Equal(t, 6, out.Balance)
	assert.Equal(t, 6, s.LedgerBalance)
}

func TestSortKeys(t *testing.T) {
	keys := SortKeys([]StockKey{
		{ProductID: "p2", BranchID: "b2"},
		{ProductID: "p1", BranchID: "b2"},
		{ProductID: "p9", BranchID: "b1"},
		{ProductID: "p1", BranchID: "b2"},
	})
	assert.Equal(t, []StockKey{
		{ProductID: "p9", BranchID: "b1"},
		{ProductID: "p1", BranchID: "b2"},
		{ProductID: "p2", BranchID: "b2"},
	}, keys)
}
