package service_test

import (
	"testing"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryScan_ClassifiesWithinThreshold(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "FIVE", "2024-12-06", 4)
	f.receive(t, "branch-a", "p2", "FORTYFIVE", "2025-01-15", 6)
	f.receive(t, "branch-a", "p3", "LATER", "2025-06-19", 8)
	f.receive(t, "branch-b", "p1", "OTHER", "2024-12-03", 1)

	got, err := f.expiry.Scan(f.ctx, "branch-a", 90)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "FIVE", got[0].Lot.BatchNumber)
	assert.Equal(t, 5, got[0].DaysToExpiry)
	assert.Equal(t, domain.LevelCritical, got[0].Level)
	assert.Equal(t, "60", got[0].BatchValue.String())

	assert.Equal(t, "FORTYFIVE", got[1].Lot.BatchNumber)
	assert.Equal(t, 45, got[1].DaysToExpiry)
	assert.Equal(t, domain.LevelWarning, got[1].Level)

	_, err = f.expiry.Scan(f.ctx, "branch-a", -1)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestGenerateAlerts_DeduplicatesOpenAlerts(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "FIVE", "2024-12-06", 4)
	f.receive(t, "branch-a", "p2", "FORTYFIVE", "2025-01-15", 6)

	first, err := f.expiry.GenerateAlerts(f.ctx, "branch-a", 90)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, domain.AlertExpiry, first[0].AlertType)
	assert.Contains(t, first[0].Message, "expires in 5 day(s)")

	again, err := f.expiry.GenerateAlerts(f.ctx, "branch-a", 90)
	require.NoError(t, err)
	assert.Empty(t, again)

	acked, err := f.expiry.Acknowledge(f.ctx, first[0].ID)
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", *acked.AcknowledgedBy)

	third, err := f.expiry.GenerateAlerts(f.ctx, "branch-a", 90)
	require.NoError(t, err)
	assert.Len(t, third, 1, "acknowledged alerts no longer block a new one")

	open := false
	list, total, err := f.expiry.ListAlerts(f.ctx, domain.AlertFilter{BranchID: "branch-a", Acknowledged: &open})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)
	assert.Equal(t, 3, f.events.count("alert.generated"))

	_, err = f.expiry.Acknowledge(f.ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRetireExpired_WritesOffRemainingStock(t *testing.T) {
	f := newFixture(t)
	old := f.receive(t, "branch-a", "p1", "OLD", "2024-12-10", 5)
	fresh := f.receive(t, "branch-a", "p1", "FRESH", "2025-06-01", 5)
	k := key("p1", "branch-a")

	f.clock.Set(f.clock.Now().AddDate(0, 0, 10))
	res, err := f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, res.LotIDs)
	assert.Equal(t, 5, res.WrittenOff)

	got := f.lot(t, old.ID)
	assert.True(t, got.Expired)
	assert.False(t, got.Active)
	assert.Zero(t, got.Available)
	assert.Equal(t, 5, got.WrittenOff)
	assert.True(t, f.lot(t, fresh.ID).Active)

	st := f.aggregate(t, k)
	assert.Equal(t, 5, st.Available)
	assert.Equal(t, 5, st.OnHand)
	require.Len(t, f.movements(t, k, domain.MovementExpiryWriteOff), 1)
	f.assertMatchesLots(t, k)

	again, err := f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)
	assert.Empty(t, again.LotIDs)

	expired, err := f.expiry.ListExpired(f.ctx, "branch-a", domain.Page{})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, 1, f.events.count("lots.retired"))
}

func TestRetireExpired_FlagsOnlyWhenNotWritingOff(t *testing.T) {
	f := newFixture(t, func(o *service.Options) { o.RetireWritesOff = false })
	old := f.receive(t, "branch-a", "p1", "OLD", "2024-12-10", 5)
	f.receive(t, "branch-a", "p1", "FRESH", "2025-06-01", 5)
	k := key("p1", "branch-a")

	f.clock.Set(f.clock.Now().AddDate(0, 0, 10))
	res, err := f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)
	assert.Zero(t, res.WrittenOff)

	got := f.lot(t, old.ID)
	assert.True(t, got.Expired)
	assert.Equal(t, 5, got.Available)
	assert.Equal(t, 10, f.aggregate(t, k).Available)
	f.assertMatchesLots(t, k)

	av, err := f.stock.GetAvailability(f.ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 5, av.Sellable, "retired stock is not for sale")

	_, err = f.stock.Allocate(f.ctx, service.AllocateRequest{ProductID: "p1", BranchID: "branch-a", Quantity: 6})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	_, err = f.stock.Allocate(f.ctx, service.AllocateRequest{ProductID: "p1", BranchID: "branch-a", Quantity: 5})
	assert.NoError(t, err)
}

func TestMarkLotExpired(t *testing.T) {
	f := newFixture(t)
	l := f.receive(t, "branch-a", "p1", "RECALLED", "2026-01-01", 7)
	k := key("p1", "branch-a")

	got, err := f.expiry.MarkLotExpired(f.ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Expired)
	assert.Equal(t, 7, got.WrittenOff)
	assert.Zero(t, f.aggregate(t, k).OnHand)
	f.assertMatchesLots(t, k)

	again, err := f.expiry.MarkLotExpired(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, again.WrittenOff, "retiring twice writes off once")

	_, err = f.stock.ReturnToLot(f.ctx, l.ID, 1, "ret")
	assert.True(t, errors.Is(err, errors.ErrBusinessRule))
}

func TestTransferCancel_IntoRetiredLotWritesOff(t *testing.T) {
	f := newFixture(t)
	l := f.receive(t, "branch-a", "p1", "SHORT", "2024-12-05", 6)
	k := key("p1", "branch-a")

	tr, err := f.transfer.Create(f.ctx, &domain.Transfer{
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Items:        []*domain.TransferItem{{ProductID: "p1", QuantityRequested: 2}},
	})
	require.NoError(t, err)
	_, err = f.transfer.Approve(f.ctx, tr.ID)
	require.NoError(t, err)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 7))
	_, err = f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.lot(t, l.ID).Allocated, "reservations survive retirement")
	f.assertMatchesLots(t, k)

	_, err = f.transfer.Cancel(f.ctx, tr.ID, "")
	require.NoError(t, err)

	got := f.lot(t, l.ID)
	assert.Zero(t, got.Available)
	assert.Zero(t, got.Allocated)
	assert.Equal(t, 6, got.WrittenOff)
	f.assertMatchesLots(t, k)
}

// approvedTransfer moves qty of p1 from branch-a to branch-b up to Approved.
func approvedTransfer(t *testing.T, f *fixture, qty int) *domain.Transfer {
	t.Helper()
	tr, err := f.transfer.Create(f.ctx, &domain.Transfer{
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Items:        []*domain.TransferItem{{ProductID: "p1", QuantityRequested: qty}},
	})
	require.NoError(t, err)
	tr, err = f.transfer.Approve(f.ctx, tr.ID)
	require.NoError(t, err)
	return tr
}

func TestTransferReceive_FromRetiredLotArrivesWrittenOff(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "SHORT", "2024-12-05", 6)
	tr := approvedTransfer(t, f, 2)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 7))
	_, err := f.expiry.RetireExpired(f.ctx, "branch-a")
	require.NoError(t, err)

	tr, err = f.transfer.Receive(f.ctx, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferReceived, tr.Status)

	dst := key("p1", "branch-b")
	lots, err := f.store.ListLots(f.ctx, domain.LotFilter{ProductID: "p1", BranchID: "branch-b"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.False(t, lots[0].Active)
	assert.True(t, lots[0].Expired)
	assert.Zero(t, lots[0].Available)
	assert.Equal(t, 2, lots[0].WrittenOff)

	st := f.aggregate(t, dst)
	assert.Zero(t, st.Available)
	assert.Zero(t, st.OnHand)
	assert.Len(t, f.movements(t, dst, domain.MovementTransferIn), 1)
	assert.Len(t, f.movements(t, dst, domain.MovementExpiryWriteOff), 1)
	f.assertMatchesLots(t, dst)
	f.assertMatchesLots(t, key("p1", "branch-a"))
}

func TestTransferReceive_PastExpiryBeforeSweepArrivesRetired(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "SHORT", "2024-12-05", 6)
	tr := approvedTransfer(t, f, 2)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 7))
	_, err := f.transfer.Receive(f.ctx, tr.ID, nil)
	require.NoError(t, err)

	dst := key("p1", "branch-b")
	assert.Zero(t, f.aggregate(t, dst).Available)
	f.assertMatchesLots(t, dst)
}

func TestTransferReceive_RetiredLotKeepsStockWithoutWriteOff(t *testing.T) {
	f := newFixture(t, func(o *service.Options) { o.RetireWritesOff = false })
	f.receive(t, "branch-a", "p1", "SHORT", "2024-12-05", 6)
	tr := approvedTransfer(t, f, 2)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 7))
	_, err := f.transfer.Receive(f.ctx, tr.ID, nil)
	require.NoError(t, err)

	lots, err := f.store.ListLots(f.ctx, domain.LotFilter{ProductID: "p1", BranchID: "branch-b"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].Expired)
	assert.False(t, lots[0].Active)
	assert.Equal(t, 2, lots[0].Available)
	assert.Empty(t, f.movements(t, key("p1", "branch-b"), domain.MovementExpiryWriteOff))
}
