package service_test

import (
	"testing"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGRN_CreateTakesStockAndDeleteRestoresIt(t *testing.T) {
	f := newFixture(t)
	l := f.receive(t, "branch-a", "paracetamol", "JAN", "2025-01-01", 10)
	grns, _, err := f.grn.List(f.ctx, domain.GRNFilter{})
	require.NoError(t, err)
	grnID := grns[0].ID

	r, err := f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:      "branch-a",
		OriginalGRNID: &grnID,
		ReturnReason:  "damaged in transit",
		Lines: []*domain.RGRNLine{{
			ProductID: "paracetamol",
			LotID:     &l.ID,
			Quantity:  4,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "RGRN-2024-00001", r.RGRNNumber)
	assert.Equal(t, "supplier-1", r.SupplierID, "supplier taken from the original grn")
	assert.Equal(t, domain.RefundPending, r.RefundStatus)
	assert.True(t, decimal.NewFromInt(40).Equal(r.TotalAmount), "valued at lot cost")
	require.Len(t, r.Lines[0].Allocations, 1)

	k := key("paracetamol", "branch-a")
	assert.Equal(t, 6, f.aggregate(t, k).OnHand)
	assert.Equal(t, 4, f.lot(t, l.ID).ReturnedToSupplier)
	require.Len(t, f.movements(t, k, domain.MovementSupplierReturn), 1)
	f.assertMatchesLots(t, k)

	require.NoError(t, f.rgrn.Delete(f.ctx, r.ID))

	assert.Equal(t, 10, f.aggregate(t, k).OnHand)
	assert.Equal(t, 10, f.lot(t, l.ID).Available)
	assert.Zero(t, f.lot(t, l.ID).ReturnedToSupplier)
	require.Len(t, f.movements(t, k, domain.MovementSupplierReturnReversal), 1)
	f.assertMatchesLots(t, k)

	_, err = f.rgrn.Get(f.ctx, r.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Equal(t, 1, f.events.count("rgrn.created"))
	assert.Equal(t, 1, f.events.count("rgrn.deleted"))
}

func TestRGRN_FailsWholeWhenOneLineIsShort(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "paracetamol", "P1", "2025-01-01", 10)
	f.receive(t, "branch-a", "ibuprofen", "I1", "2025-01-01", 2)

	_, err := f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:     "branch-a",
		SupplierID:   "supplier-1",
		ReturnReason: "recall",
		Lines: []*domain.RGRNLine{
			{ProductID: "paracetamol", Quantity: 5, UnitPrice: decimal.NewFromInt(9)},
			{ProductID: "ibuprofen", Quantity: 3},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	assert.Equal(t, 10, f.aggregate(t, key("paracetamol", "branch-a")).Available)
	assert.Equal(t, 2, f.aggregate(t, key("ibuprofen", "branch-a")).Available)
	list, total, err := f.rgrn.List(f.ctx, domain.RGRNFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
	f.assertMatchesLots(t, key("paracetamol", "branch-a"))
}

func TestRGRN_RequiresReceivedGRNAtSameBranch(t *testing.T) {
	f := newFixture(t)
	g, err := f.grn.Create(f.ctx, draftGRN())
	require.NoError(t, err)

	_, err = f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:      "branch-a",
		OriginalGRNID: &g.ID,
		ReturnReason:  "expired",
		Lines:         []*domain.RGRNLine{{ProductID: "paracetamol", Quantity: 1}},
	})
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))

	_, err = f.grn.Approve(f.ctx, g.ID)
	require.NoError(t, err)
	_, err = f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:      "branch-b",
		OriginalGRNID: &g.ID,
		ReturnReason:  "expired",
		Lines:         []*domain.RGRNLine{{ProductID: "paracetamol", Quantity: 1}},
	})
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
}

func TestRGRN_PinnedLotMustComeFromOriginalGRN(t *testing.T) {
	f := newFixture(t)
	first := f.receive(t, "branch-a", "paracetamol", "JAN", "2025-01-01", 10)
	second := f.receive(t, "branch-a", "paracetamol", "MAR", "2025-03-01", 10)

	firstGRN, err := f.grn.Get(f.ctx, grnIDFor(t, f, first))
	require.NoError(t, err)

	_, err = f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:      "branch-a",
		OriginalGRNID: &firstGRN.ID,
		ReturnReason:  "damaged",
		Lines:         []*domain.RGRNLine{{ProductID: "paracetamol", LotID: &second.ID, Quantity: 2}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
	assert.Equal(t, 10, f.lot(t, second.ID).Available)
	assert.Equal(t, 20, f.aggregate(t, key("paracetamol", "branch-a")).Available)

	_, err = f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:      "branch-a",
		OriginalGRNID: &firstGRN.ID,
		ReturnReason:  "damaged",
		Lines:         []*domain.RGRNLine{{ProductID: "paracetamol", LotID: &first.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, f.lot(t, first.ID).Available)
	f.assertMatchesLots(t, key("paracetamol", "branch-a"))
}

// grnIDFor finds the goods receipt whose line booked l.
func grnIDFor(t *testing.T, f *fixture, l *domain.Lot) string {
	t.Helper()
	require.NotNil(t, l.GRNLineID)
	grns, _, err := f.grn.List(f.ctx, domain.GRNFilter{})
	require.NoError(t, err)
	for _, g := range grns {
		full, err := f.grn.Get(f.ctx, g.ID)
		require.NoError(t, err)
		for _, gl := range full.Lines {
			if gl.ID == *l.GRNLineID {
				return g.ID
			}
		}
	}
	t.Fatalf("no grn booked lot %s", l.ID)
	return ""
}

func TestRGRN_RefundStatus(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "paracetamol", "P1", "2025-01-01", 10)
	r, err := f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:     "branch-a",
		SupplierID:   "supplier-1",
		ReturnReason: "overstock",
		Lines:        []*domain.RGRNLine{{ProductID: "paracetamol", Quantity: 2, UnitPrice: decimal.NewFromInt(12)}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(24).Equal(r.TotalAmount))

	part := decimal.NewFromInt(10)
	r, err = f.rgrn.UpdateRefundStatus(f.ctx, r.ID, domain.RefundPartiallyPaid, &part)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPartiallyPaid, r.RefundStatus)
	assert.True(t, part.Equal(r.RefundedAmount))

	tooMuch := decimal.NewFromInt(25)
	_, err = f.rgrn.UpdateRefundStatus(f.ctx, r.ID, domain.RefundPaid, &tooMuch)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	r, err = f.rgrn.UpdateRefundStatus(f.ctx, r.ID, domain.RefundPaid, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPaid, r.RefundStatus)
	assert.True(t, r.TotalAmount.Equal(r.RefundedAmount))

	_, err = f.rgrn.UpdateRefundStatus(f.ctx, r.ID, domain.RefundCancelled, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))

	err = f.rgrn.Delete(f.ctx, r.ID)
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
	assert.Equal(t, 8, f.aggregate(t, key("paracetamol", "branch-a")).OnHand, "paid return keeps its stock movement")
}

func TestRGRN_DeleteIntoRetiredLotWritesItOff(t *testing.T) {
	f := newFixture(t)
	l := f.receive(t, "branch-a", "paracetamol", "DEC", "2024-12-05", 10)
	r, err := f.rgrn.Create(f.ctx, &domain.RGRN{
		BranchID:     "branch-a",
		SupplierID:   "supplier-1",
		ReturnReason: "short dated",
		Lines:        []*domain.RGRNLine{{ProductID: "paracetamol", LotID: &l.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 10))
	_, err = f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)

	require.NoError(t, f.rgrn.Delete(f.ctx, r.ID))

	got := f.lot(t, l.ID)
	assert.Zero(t, got.Available)
	assert.Equal(t, 10, got.WrittenOff)
	k := key("paracetamol", "branch-a")
	assert.Zero(t, f.aggregate(t, k).OnHand)
	f.assertMatchesLots(t, k)
}
