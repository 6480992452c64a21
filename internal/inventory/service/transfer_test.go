package service_test

import (
	"testing"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(product string, qty int) *domain.Transfer {
	return &domain.Transfer{
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Items:        []*domain.TransferItem{{ProductID: product, QuantityRequested: qty}},
	}
}

func TestTransfer_RoundTrip(t *testing.T) {
	f := newFixture(t)
	src := f.receive(t, "branch-a", "paracetamol", "JAN", "2025-01-01", 10)
	srcKey, dstKey := key("paracetamol", "branch-a"), key("paracetamol", "branch-b")

	tr, err := f.transfer.Create(f.ctx, newTransfer("paracetamol", 4))
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, tr.Status)
	assert.Equal(t, "ST-2024-00001", tr.TransferNumber)
	assert.Equal(t, 10, f.aggregate(t, srcKey).Available, "pending transfers hold nothing")

	tr, err = f.transfer.Approve(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferApproved, tr.Status)
	assert.Equal(t, 4, tr.Items[0].QuantityTransferred)
	require.Len(t, tr.Items[0].Allocations, 1)

	st := f.aggregate(t, srcKey)
	assert.Equal(t, 6, st.Available)
	assert.Equal(t, 4, st.Allocated)
	assert.Equal(t, 10, st.OnHand)
	f.assertMatchesLots(t, srcKey)

	tr, err = f.transfer.Dispatch(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferInTransit, tr.Status)
	require.NotNil(t, tr.DispatchedAt)

	tr, err = f.transfer.Receive(f.ctx, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferReceived, tr.Status)
	assert.Equal(t, 4, tr.Items[0].QuantityReceived)
	require.NotNil(t, tr.ReceivedDate)

	st = f.aggregate(t, srcKey)
	assert.Equal(t, 6, st.OnHand)
	assert.Equal(t, 0, st.Allocated)
	assert.Equal(t, 6, st.Available)
	assert.Equal(t, 4, f.lot(t, src.ID).TransferredOut)

	dst := f.aggregate(t, dstKey)
	assert.Equal(t, 4, dst.OnHand)
	assert.Equal(t, 4, dst.Available)

	lots, err := f.stock.ListLots(f.ctx, domain.LotFilter{ProductID: "paracetamol", BranchID: "branch-b"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "JAN", lots[0].BatchNumber)
	assert.Equal(t, src.ExpiryDate.Format("2006-01-02"), lots[0].ExpiryDate.Format("2006-01-02"))
	require.NotNil(t, lots[0].SourceLotID)
	assert.Equal(t, src.ID, *lots[0].SourceLotID)

	require.Len(t, f.movements(t, srcKey, domain.MovementTransferOut), 1)
	require.Len(t, f.movements(t, dstKey, domain.MovementTransferIn), 1)
	f.assertMatchesLots(t, srcKey)
	f.assertMatchesLots(t, dstKey)

	_, err = f.transfer.Cancel(f.ctx, tr.ID, "too late")
	assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))

	assert.Equal(t, 1, f.events.count("transfer.RECEIVED"))
	assert.Equal(t, 1, f.events.count("transfer.APPROVED"))
}

func TestTransfer_CancelAfterApprovalRestoresSource(t *testing.T) {
	f := newFixture(t)
	jan := f.receive(t, "branch-a", "paracetamol", "JAN", "2025-01-01", 3)
	mar := f.receive(t, "branch-a", "paracetamol", "MAR", "2025-03-01", 7)
	srcKey := key("paracetamol", "branch-a")

	tr, err := f.transfer.Create(f.ctx, newTransfer("paracetamol", 5))
	require.NoError(t, err)
	tr, err = f.transfer.Approve(f.ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, tr.Items[0].Allocations, 2, "reservation spans both lots")

	tr, err = f.transfer.Cancel(f.ctx, tr.ID, "branch closed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCancelled, tr.Status)
	assert.Equal(t, "branch closed", *tr.CancellationReason)

	st := f.aggregate(t, srcKey)
	assert.Equal(t, 10, st.Available)
	assert.Zero(t, st.Allocated)
	assert.Equal(t, 3, f.lot(t, jan.ID).Available)
	assert.Equal(t, 7, f.lot(t, mar.ID).Available)
	f.assertMatchesLots(t, srcKey)
}

func TestTransfer_ApproveIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "paracetamol", "P1", "2025-01-01", 10)
	f.receive(t, "branch-a", "ibuprofen", "I1", "2025-01-01", 2)

	tr, err := f.transfer.Create(f.ctx, &domain.Transfer{
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Items: []*domain.TransferItem{
			{ProductID: "paracetamol", QuantityRequested: 4},
			{ProductID: "ibuprofen", QuantityRequested: 5},
		},
	})
	require.NoError(t, err)

	_, err = f.transfer.Approve(f.ctx, tr.ID)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	got, err := f.transfer.Get(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, got.Status)
	assert.Zero(t, f.aggregate(t, key("paracetamol", "branch-a")).Allocated)
	f.assertMatchesLots(t, key("paracetamol", "branch-a"))
}

func TestTransfer_ReceiveShort(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "paracetamol", "JAN", "2025-01-01", 10)

	tr, err := f.transfer.Create(f.ctx, newTransfer("paracetamol", 4))
	require.NoError(t, err)
	tr, err = f.transfer.Approve(f.ctx, tr.ID)
	require.NoError(t, err)

	_, err = f.transfer.Receive(f.ctx, tr.ID, map[string]int{tr.Items[0].ID: 5})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	tr, err = f.transfer.Receive(f.ctx, tr.ID, map[string]int{tr.Items[0].ID: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Items[0].QuantityReceived)

	assert.Equal(t, 6, f.aggregate(t, key("paracetamol", "branch-a")).OnHand)
	assert.Equal(t, 3, f.aggregate(t, key("paracetamol", "branch-b")).OnHand)
	f.assertMatchesLots(t, key("paracetamol", "branch-b"))
}

func TestTransfer_RejectAndValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.transfer.Create(f.ctx, &domain.Transfer{
		FromBranchID: "branch-a",
		ToBranchID:   "branch-a",
		Items:        []*domain.TransferItem{{ProductID: "p", QuantityRequested: 1}},
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	tr, err := f.transfer.Create(f.ctx, newTransfer("paracetamol", 1))
	require.NoError(t, err)
	tr, err = f.transfer.Reject(f.ctx, tr.ID, "not needed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferRejected, tr.Status)

	_, err = f.transfer.Approve(f.ctx, tr.ID)
	assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))

	list, total, err := f.transfer.List(f.ctx, domain.TransferFilter{BranchID: "branch-b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "paracetamol", "A", "2025-01-01", 10)
	f.receive(t, "branch-b", "paracetamol", "B", "2025-01-01", 10)

	ab, err := f.transfer.Create(f.ctx, newTransfer("paracetamol", 2))
	require.NoError(t, err)
	ba, err := f.transfer.Create(f.ctx, &domain.Transfer{
		FromBranchID: "branch-b",
		ToBranchID:   "branch-a",
		Items:        []*domain.TransferItem{{ProductID: "paracetamol", QuantityRequested: 3}},
	})
	require.NoError(t, err)
	_, err = f.transfer.Approve(f.ctx, ab.ID)
	require.NoError(t, err)
	_, err = f.transfer.Approve(f.ctx, ba.ID)
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() { _, err := f.transfer.Receive(f.ctx, ab.ID, nil); errs <- err }()
	go func() { _, err := f.transfer.Receive(f.ctx, ba.ID, nil); errs <- err }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, 11, f.aggregate(t, key("paracetamol", "branch-a")).OnHand)
	assert.Equal(t, 9, f.aggregate(t, key("paracetamol", "branch-b")).OnHand)
	f.assertMatchesLots(t, key("paracetamol", "branch-a"))
	f.assertMatchesLots(t, key("paracetamol", "branch-b"))
}
