package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// TransferService handles inter-branch transfers. Approval reserves stock at
// the source, receiving consumes the reservation and creates lots at the
// destination, and cancelling an approved transfer releases it.
type TransferService struct {
	*Engine
	logger *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(engine *Engine) *TransferService {
	return &TransferService{
		Engine: engine,
		logger: engine.logger.WithComponent("transfer"),
	}
}

// Create records a pending transfer. No stock moves yet.
func (s *TransferService) Create(ctx context.Context, t *domain.Transfer) (*domain.Transfer, error) {
	details := map[string]string{}
	if t.FromBranchID == t.ToBranchID {
		details["to_branch_id"] = "must differ from from_branch_id"
	}
	if len(t.Items) == 0 {
		details["items"] = "must contain at least 1 item"
	}
	for i, it := range t.Items {
		if it.QuantityRequested <= 0 {
			details[fmt.Sprintf("items[%d].quantity_requested", i)] = "must be greater than 0"
		}
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	now := s.now()
	t.ID = newID()
	t.Status = domain.TransferPending
	t.CreatedBy = actor.OrSystem(ctx).ID
	if t.TransferDate.IsZero() {
		t.TransferDate = domain.Date(now)
	}
	for _, it := range t.Items {
		it.ID = newID()
		it.TransferID = t.ID
		it.QuantityTransferred = 0
		it.QuantityReceived = 0
		it.Allocations = nil
	}

	err := s.run(ctx, "create_transfer", func(ctx context.Context) error {
		number, err := s.nextNumber(ctx, domain.PrefixTransfer, t.TransferDate)
		if err != nil {
			return err
		}
		t.TransferNumber = number
		return s.store.CreateTransfer(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_number", t.TransferNumber).
		Str("from_branch_id", t.FromBranchID).
		Str("to_branch_id", t.ToBranchID).
		Msg("transfer created")
	s.publish(ctx, t)
	return t, nil
}

// Approve reserves every item at the source branch. If any item cannot be
// covered the transfer stays pending and nothing is reserved.
func (s *TransferService) Approve(ctx context.Context, id string) (*domain.Transfer, error) {
	by := actor.OrSystem(ctx)
	return s.step(ctx, id, domain.TransferActionApprove, func(ctx context.Context, t *domain.Transfer) error {
		stocks, err := s.lockStocks(ctx, sourceKeys(t))
		if err != nil {
			return err
		}
		for _, it := range t.Items {
			st := stocks[domain.StockKey{ProductID: it.ProductID, BranchID: t.FromBranchID}]
			allocs, err := s.reserve(ctx, st, it.QuantityRequested, it.LotID)
			if err != nil {
				return err
			}
			it.Allocations = allocs
			it.QuantityTransferred = it.QuantityRequested
		}
		if err := s.saveStocks(ctx, stocks); err != nil {
			return err
		}
		now := s.now()
		t.ApprovedBy = &by.ID
		t.ApprovedAt = &now
		return nil
	})
}

// Dispatch marks an approved transfer as on its way.
func (s *TransferService) Dispatch(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.step(ctx, id, domain.TransferActionDispatch, func(ctx context.Context, t *domain.Transfer) error {
		now := s.now()
		t.DispatchedAt = &now
		return nil
	})
}

// Receive completes a transfer. The source reservation is consumed in full
// and the destination gains one lot per source lot, carrying its batch,
// dates and prices. received maps item IDs to the quantity that actually
// arrived; missing items arrived complete. A shortfall never reaches the
// destination.
func (s *TransferService) Receive(ctx context.Context, id string, received map[string]int) (*domain.Transfer, error) {
	by := actor.OrSystem(ctx)
	return s.step(ctx, id, domain.TransferActionReceive, func(ctx context.Context, t *domain.Transfer) error {
		for itemID, qty := range received {
			it := findItem(t, itemID)
			if it == nil {
				return errors.BadRequest("transfer has no item " + itemID)
			}
			if qty < 0 || qty > it.QuantityTransferred {
				return errors.Validation(map[string]string{
					"received." + itemID: fmt.Sprintf("must be between 0 and %d", it.QuantityTransferred),
				})
			}
		}

		stocks, err := s.lockStocks(ctx, t.StockKeys())
		if err != nil {
			return err
		}

		for _, it := range t.Items {
			src := stocks[domain.StockKey{ProductID: it.ProductID, BranchID: t.FromBranchID}]
			dst := stocks[domain.StockKey{ProductID: it.ProductID, BranchID: t.ToBranchID}]

			desc := "Transfer " + t.TransferNumber + " to branch " + t.ToBranchID
			if err := s.consume(ctx, src, it.Allocations, domain.OutflowTransfer, domain.MovementTransferOut, t.ID, desc); err != nil {
				return err
			}

			arrived := it.QuantityTransferred
			if qty, ok := received[it.ID]; ok {
				arrived = qty
			}
			if err := s.receiveInto(ctx, dst, t, it, arrived); err != nil {
				return err
			}
			it.QuantityReceived = arrived
			if arrived < it.QuantityTransferred {
				s.logger.Warn().
					Str("transfer_number", t.TransferNumber).
					Str("product_id", it.ProductID).
					Int("transferred", it.QuantityTransferred).
					Int("received", arrived).
					Msg("transfer received short")
			}
		}
		if err := s.saveStocks(ctx, stocks); err != nil {
			return err
		}

		now := s.now()
		t.ReceivedDate = &now
		t.ReceivedBy = &by.ID
		return nil
	})
}

// receiveInto books qty of an item at the destination, filling the item's
// source lots in allocation order. Stock from a source lot that was retired
// or went past expiry while in transit arrives retired, and is written off
// at once when retirement writes off.
func (s *TransferService) receiveInto(ctx context.Context, dst *domain.BranchStock, t *domain.Transfer, it *domain.TransferItem, qty int) error {
	now := s.now()
	remaining := qty
	for _, a := range it.Allocations {
		if remaining == 0 {
			break
		}
		take := a.Quantity
		if take > remaining {
			take = remaining
		}
		remaining -= take

		source, err := s.store.LockLot(ctx, a.LotID)
		if err != nil {
			return err
		}
		lot := destinationLot(source, t.ToBranchID, take, now)
		if err := s.store.CreateLot(ctx, lot); err != nil {
			return err
		}
		if err := dst.CommitIn(take); err != nil {
			return err
		}
		if err := s.post(ctx, dst, domain.Movement{
			Type:        domain.MovementTransferIn,
			ReferenceID: t.ID,
			LotID:       &lot.ID,
			QuantityIn:  take,
			Description: "Transfer " + t.TransferNumber + " from branch " + t.FromBranchID,
		}); err != nil {
			return err
		}

		if source.Stocked() && !source.PastExpiry(now) {
			continue
		}
		lot.Retire(false)
		if s.opts.RetireWritesOff {
			if err := s.writeOff(ctx, dst, lot, take, t.ID); err != nil {
				return err
			}
		}
		if err := s.store.SaveLot(ctx, lot); err != nil {
			return err
		}
		s.logger.Warn().
			Str("transfer_number", t.TransferNumber).
			Str("batch_number", lot.BatchNumber).
			Int("quantity", take).
			Msg("transferred batch expired in transit, received retired")
	}
	return nil
}

func destinationLot(source *domain.Lot, branchID string, qty int, now time.Time) *domain.Lot {
	sourceID := source.ID
	return &domain.Lot{
		ID:                newID(),
		ProductID:         source.ProductID,
		BranchID:          branchID,
		BatchNumber:       source.BatchNumber,
		ManufacturingDate: source.ManufacturingDate,
		ExpiryDate:        source.ExpiryDate,
		Received:          qty,
		Available:         qty,
		UnitCost:          source.UnitCost,
		SellingPrice:      source.SellingPrice,
		MRP:               source.MRP,
		Active:            true,
		SourceLotID:       &sourceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Reject closes a pending transfer. A reason is required.
func (s *TransferService) Reject(ctx context.Context, id, reason string) (*domain.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}
	return s.step(ctx, id, domain.TransferActionReject, func(ctx context.Context, t *domain.Transfer) error {
		t.RejectionReason = &reason
		return nil
	})
}

// Cancel closes a transfer that has not been received. Stock reserved at
// approval goes back to the lots it came from.
func (s *TransferService) Cancel(ctx context.Context, id, reason string) (*domain.Transfer, error) {
	return s.step(ctx, id, domain.TransferActionCancel, func(ctx context.Context, t *domain.Transfer) error {
		if reason = strings.TrimSpace(reason); reason != "" {
			t.CancellationReason = &reason
		}
		// t.Status is still the pre-cancel status here
		if !t.Status.HoldsReservation() {
			return nil
		}
		stocks, err := s.lockStocks(ctx, sourceKeys(t))
		if err != nil {
			return err
		}
		for _, it := range t.Items {
			st := stocks[domain.StockKey{ProductID: it.ProductID, BranchID: t.FromBranchID}]
			if err := s.release(ctx, st, it.Allocations, t.ID); err != nil {
				return err
			}
		}
		return s.saveStocks(ctx, stocks)
	})
}

// step applies action to the locked transfer, runs apply for its stock
// effects and saves it.
func (s *TransferService) step(ctx context.Context, id string, action domain.TransferAction, apply func(ctx context.Context, t *domain.Transfer) error) (*domain.Transfer, error) {
	var out *domain.Transfer
	err := s.run(ctx, string(action)+"_transfer", func(ctx context.Context) error {
		t, err := s.store.LockTransfer(ctx, id)
		if err != nil {
			return err
		}
		next, err := t.Status.Next(action)
		if err != nil {
			return err
		}
		if err := apply(ctx, t); err != nil {
			return err
		}
		t.Status = next
		if err := s.store.SaveTransfer(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_number", out.TransferNumber).
		Str("status", string(out.Status)).
		Msg("transfer status changed")
	s.publish(ctx, out)
	return out, nil
}

func (s *TransferService) publish(ctx context.Context, t *domain.Transfer) {
	if s.events != nil {
		s.events.TransferChanged(ctx, t, actor.OrSystem(ctx).ID)
	}
}

// Get gets a transfer by ID
func (s *TransferService) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.store.GetTransfer(ctx, id)
}

// List lists transfers newest first
func (s *TransferService) List(ctx context.Context, f domain.TransferFilter) ([]*domain.Transfer, int64, error) {
	return s.store.ListTransfers(ctx, f)
}

func sourceKeys(t *domain.Transfer) []domain.StockKey {
	keys := make([]domain.StockKey, 0, len(t.Items))
	for _, it := range t.Items {
		keys = append(keys, domain.StockKey{ProductID: it.ProductID, BranchID: t.FromBranchID})
	}
	return keys
}

func findItem(t *domain.Transfer, id string) *domain.TransferItem {
	for _, it := range t.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}
