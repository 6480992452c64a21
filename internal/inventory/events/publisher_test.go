package events_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/events"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/medlan/medlan-backend/pkg/messaging"
	"github.com/medlan/medlan-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestGRNReceived_CarriesLots(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	p.GRNReceived(context.Background(), &domain.GRN{
		ID:         "grn-1",
		GRNNumber:  "GRN-2024-00001",
		BranchID:   "branch-a",
		SupplierID: "supplier-1",
		NetAmount:  decimal.NewFromInt(100),
		ApprovedBy: strPtr("user-1"),
		Lines: []*domain.GRNLine{
			{ProductID: "prod-001", BatchNumber: "B1", Quantity: 10, LotID: strPtr("lot-1")},
		},
	})

	got := mock.Find(messaging.EventGRNReceived)
	require.Len(t, got, 1)
	evt := got[0].(messaging.GRNReceivedEvent)
	assert.Equal(t, "GRN-2024-00001", evt.GRNNumber)
	assert.Equal(t, "user-1", evt.ApprovedBy)
	require.Len(t, evt.Lines, 1)
	require.Len(t, evt.Lines[0].Lots, 1)
	assert.Equal(t, "lot-1", evt.Lines[0].Lots[0].LotID)
}

func TestTransferChanged_RoutesByStatus(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	tr := &domain.Transfer{
		ID:           "tr-1",
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Status:       domain.TransferInTransit,
		Items: []*domain.TransferItem{{
			ProductID:           "prod-001",
			QuantityTransferred: 4,
			Allocations:         []domain.Allocation{{LotID: "lot-1", BatchNumber: "B1", Quantity: 4}},
		}},
	}
	p.TransferChanged(context.Background(), tr, "user-1")

	assert.Equal(t, messaging.EventTransferDispatched, events.TransferEventType(domain.TransferInTransit))
	assert.Equal(t, messaging.EventTransferApproved, events.TransferEventType(domain.TransferApproved))
	assert.Equal(t, messaging.EventTransferRejected, events.TransferEventType(domain.TransferRejected))
	assert.Equal(t, messaging.EventTransferCancelled, events.TransferEventType(domain.TransferCancelled))

	got := mock.Find(messaging.EventTransferDispatched)
	require.Len(t, got, 1)
	evt := got[0].(messaging.TransferStatusChangedEvent)
	assert.Equal(t, "IN_TRANSIT", evt.Status)
	assert.Equal(t, "user-1", evt.PerformedBy)
	assert.Equal(t, 4, evt.Lines[0].Quantity)
}

func TestTransferChanged_ReceivedReportsReceivedQuantity(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	p.TransferChanged(context.Background(), &domain.Transfer{
		ID:     "tr-1",
		Status: domain.TransferReceived,
		Items:  []*domain.TransferItem{{ProductID: "prod-001", QuantityTransferred: 4, QuantityReceived: 3}},
	}, "user-1")

	got := mock.Find(messaging.EventTransferReceived)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].(messaging.TransferStatusChangedEvent).Lines[0].Quantity)
}

func TestStockAllocated_SumsLots(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	p.StockAllocated(context.Background(), domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"}, "sale-1", []domain.Allocation{
		{LotID: "lot-1", Quantity: 5},
		{LotID: "lot-2", Quantity: 3},
	})

	got := mock.Find(messaging.EventStockAllocated)
	require.Len(t, got, 1)
	evt := got[0].(messaging.StockAllocatedEvent)
	assert.Equal(t, 8, evt.Quantity)
	assert.Equal(t, "sale-1", evt.ReferenceID)
	assert.Len(t, evt.Lots, 2)
}

func TestLotsRetired_SkipsEmptySweep(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	p.LotsRetired(context.Background(), "branch-a", nil, "2024-12-01")
	mock.AssertNoEventsPublished(t)

	p.LotsRetired(context.Background(), "branch-a", []string{"lot-1"}, "2024-12-01")
	mock.AssertEventPublished(t, messaging.EventLotsRetired)

	mock.Reset()
	p.LotsRetired(context.Background(), "branch-b", []string{}, "2024-12-02")
	mock.AssertNoEventsPublished(t)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	mock := testutil.NewMockPublisher()
	mock.Err = stderrors.New("channel closed")
	p := events.NewInventoryEventPublisher(mock, logger.Nop())

	assert.NotPanics(t, func() {
		p.AlertGenerated(context.Background(), &domain.Alert{ID: "alert-1", AlertType: domain.AlertLowStock, Level: domain.LevelLow})
	})
	mock.AssertEventPublished(t, messaging.EventAlertGenerated)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *events.InventoryEventPublisher
	assert.NotPanics(t, func() {
		p.RGRNCreated(context.Background(), &domain.RGRN{ID: "rgrn-1"})
		p.DriftRepaired(context.Background(), &domain.BranchStock{}, &domain.BranchStock{})
	})
}
