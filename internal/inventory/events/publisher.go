package events

import (
	"context"
	"strings"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/medlan/medlan-backend/pkg/messaging"
)

var _ service.EventPublisher = (*InventoryEventPublisher)(nil)

// InventoryEventPublisher publishes inventory-related events. Publishing is
// best effort: the stock movement has already committed, so failures are
// logged and dropped.
type InventoryEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(publisher messaging.EventPublisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

// GRNReceived publishes an approved goods receipt with the lots it created
func (p *InventoryEventPublisher) GRNReceived(ctx context.Context, g *domain.GRN) {
	if p == nil {
		return
	}

	lines := make([]messaging.StockLine, 0, len(g.Lines))
	for _, l := range g.Lines {
		line := messaging.StockLine{ProductID: l.ProductID, Quantity: l.Quantity}
		if l.LotID != nil {
			line.Lots = []messaging.LotQuantity{{LotID: *l.LotID, BatchNumber: l.BatchNumber, Quantity: l.Quantity}}
		}
		lines = append(lines, line)
	}

	approvedBy := ""
	if g.ApprovedBy != nil {
		approvedBy = *g.ApprovedBy
	}

	data := messaging.GRNReceivedEvent{
		GRNID:      g.ID,
		GRNNumber:  g.GRNNumber,
		BranchID:   g.BranchID,
		SupplierID: g.SupplierID,
		NetAmount:  g.NetAmount,
		Lines:      lines,
		ApprovedBy: approvedBy,
	}
	p.publish(ctx, messaging.EventGRNReceived, data, "grn_id", g.ID)
}

// RGRNCreated publishes a supplier return
func (p *InventoryEventPublisher) RGRNCreated(ctx context.Context, r *domain.RGRN) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventRGRNCreated, rgrnEvent(r), "rgrn_id", r.ID)
}

// RGRNDeleted publishes a deleted supplier return whose stock went back
func (p *InventoryEventPublisher) RGRNDeleted(ctx context.Context, r *domain.RGRN) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventRGRNDeleted, rgrnEvent(r), "rgrn_id", r.ID)
}

// TransferChanged publishes a transfer transition. The routing key follows
// the new status, e.g. inventory.transfer.in_transit.
func (p *InventoryEventPublisher) TransferChanged(ctx context.Context, t *domain.Transfer, by string) {
	if p == nil {
		return
	}

	lines := make([]messaging.StockLine, 0, len(t.Items))
	for _, it := range t.Items {
		qty := it.QuantityTransferred
		if t.Status == domain.TransferReceived {
			qty = it.QuantityReceived
		}
		lines = append(lines, messaging.StockLine{
			ProductID: it.ProductID,
			Quantity:  qty,
			Lots:      lotQuantities(it.Allocations),
		})
	}

	data := messaging.TransferStatusChangedEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		FromBranchID:   t.FromBranchID,
		ToBranchID:     t.ToBranchID,
		Status:         string(t.Status),
		PerformedBy:    by,
		Lines:          lines,
	}
	p.publish(ctx, TransferEventType(t.Status), data, "transfer_id", t.ID)
}

// TransferEventType returns the event type published for a transfer entering status.
func TransferEventType(status domain.TransferStatus) string {
	return "inventory.transfer." + strings.ToLower(string(status))
}

// StockAllocated publishes the lots a sale line consumed
func (p *InventoryEventPublisher) StockAllocated(ctx context.Context, key domain.StockKey, referenceID string, allocs []domain.Allocation) {
	if p == nil {
		return
	}

	data := messaging.StockAllocatedEvent{
		ProductID:   key.ProductID,
		BranchID:    key.BranchID,
		ReferenceID: referenceID,
		Quantity:    domain.TotalQuantity(allocs),
		Lots:        lotQuantities(allocs),
	}
	p.publish(ctx, messaging.EventStockAllocated, data, "reference_id", referenceID)
}

// DriftRepaired publishes an aggregate that a rebuild changed
func (p *InventoryEventPublisher) DriftRepaired(ctx context.Context, before, after *domain.BranchStock) {
	if p == nil {
		return
	}

	data := messaging.StockDriftRepairedEvent{
		ProductID:         after.ProductID,
		BranchID:          after.BranchID,
		PreviousAvailable: before.Available,
		PreviousAllocated: before.Allocated,
		Available:         after.Available,
		Allocated:         after.Allocated,
	}
	p.publish(ctx, messaging.EventStockDriftRepaired, data, "product_id", after.ProductID)
}

// AlertGenerated publishes a new expiry or low stock alert
func (p *InventoryEventPublisher) AlertGenerated(ctx context.Context, a *domain.Alert) {
	if p == nil {
		return
	}

	lotID := ""
	if a.LotID != nil {
		lotID = *a.LotID
	}

	data := messaging.AlertGeneratedEvent{
		AlertID:      a.ID,
		AlertType:    string(a.AlertType),
		Level:        string(a.Level),
		Message:      a.Message,
		ProductID:    a.ProductID,
		BranchID:     a.BranchID,
		LotID:        lotID,
		DaysToExpiry: a.DaysToExpiry,
		BatchValue:   a.BatchValue,
	}
	p.publish(ctx, messaging.EventAlertGenerated, data, "alert_id", a.ID)
}

// LotsRetired publishes the lots an expiry sweep retired
func (p *InventoryEventPublisher) LotsRetired(ctx context.Context, branchID string, lotIDs []string, asOf string) {
	if p == nil || len(lotIDs) == 0 {
		return
	}

	data := messaging.LotsRetiredEvent{
		BranchID: branchID,
		LotIDs:   lotIDs,
		AsOf:     asOf,
	}
	p.publish(ctx, messaging.EventLotsRetired, data, "branch_id", branchID)
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data interface{}, idKey, id string) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str(idKey, id).
			Msg("failed to publish event")
	}
}

func rgrnEvent(r *domain.RGRN) messaging.RGRNEvent {
	lines := make([]messaging.StockLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, messaging.StockLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Lots:      lotQuantities(l.Allocations),
		})
	}
	return messaging.RGRNEvent{
		RGRNID:       r.ID,
		RGRNNumber:   r.RGRNNumber,
		BranchID:     r.BranchID,
		SupplierID:   r.SupplierID,
		TotalAmount:  r.TotalAmount,
		RefundStatus: string(r.RefundStatus),
		Lines:        lines,
	}
}

func lotQuantities(allocs []domain.Allocation) []messaging.LotQuantity {
	if len(allocs) == 0 {
		return nil
	}
	out := make([]messaging.LotQuantity, len(allocs))
	for i, a := range allocs {
		out[i] = messaging.LotQuantity{LotID: a.LotID, BatchNumber: a.BatchNumber, Quantity: a.Quantity}
	}
	return out
}
