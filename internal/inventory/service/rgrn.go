package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// RGRNService handles returns to suppliers. Stock leaves the branch when
// the return is created; deleting an unpaid return puts it back.
type RGRNService struct {
	*Engine
	logger *logger.Logger
}

// NewRGRNService creates a new supplier return service
func NewRGRNService(engine *Engine) *RGRNService {
	return &RGRNService{
		Engine: engine,
		logger: engine.logger.WithComponent("rgrn"),
	}
}

// checkLotsFromGRN rejects pinned lots that were not booked by grn.
func (s *RGRNService) checkLotsFromGRN(ctx context.Context, grn *domain.GRN, lines []*domain.RGRNLine) error {
	received := make(map[string]bool, len(grn.Lines))
	for _, gl := range grn.Lines {
		received[gl.ID] = true
	}
	for _, l := range lines {
		if l.LotID == nil {
			continue
		}
		lot, err := s.store.GetLot(ctx, *l.LotID)
		if err != nil {
			return err
		}
		if lot.GRNLineID == nil || !received[*lot.GRNLineID] {
			return errors.BusinessRuleViolation(fmt.Sprintf("lot %s was not received on grn %s", lot.BatchNumber, grn.GRNNumber))
		}
	}
	return nil
}

// Create books a supplier return. Every line is taken from stock in the
// same transaction that records the return; if any line cannot be covered
// nothing is written.
func (s *RGRNService) Create(ctx context.Context, r *domain.RGRN) (*domain.RGRN, error) {
	if err := checkRGRNLines(r); err != nil {
		return nil, err
	}
	if r.OriginalGRNID != nil {
		grn, err := s.store.GetGRN(ctx, *r.OriginalGRNID)
		if err != nil {
			return nil, err
		}
		if grn.Status != domain.GRNReceived {
			return nil, errors.BusinessRuleViolation("original grn " + grn.GRNNumber + " has not been received")
		}
		if grn.BranchID != r.BranchID {
			return nil, errors.BusinessRuleViolation("original grn " + grn.GRNNumber + " was received at another branch")
		}
		if r.SupplierID == "" {
			r.SupplierID = grn.SupplierID
		}
		if err := s.checkLotsFromGRN(ctx, grn, r.Lines); err != nil {
			return nil, err
		}
	}
	if r.SupplierID == "" {
		return nil, errors.Validation(map[string]string{"supplier_id": "is required"})
	}

	now := s.now()
	r.ID = newID()
	r.RefundStatus = domain.RefundPending
	r.RefundedAmount = decimal.Zero
	r.CreatedBy = actor.OrSystem(ctx).ID
	if r.ReturnDate.IsZero() {
		r.ReturnDate = domain.Date(now)
	}
	for _, l := range r.Lines {
		l.ID = newID()
		l.RGRNID = r.ID
	}

	err := s.run(ctx, "create_rgrn", func(ctx context.Context) error {
		number, err := s.nextNumber(ctx, domain.PrefixRGRN, r.ReturnDate)
		if err != nil {
			return err
		}
		r.RGRNNumber = number

		keys := make([]domain.StockKey, 0, len(r.Lines))
		for _, l := range r.Lines {
			keys = append(keys, domain.StockKey{ProductID: l.ProductID, BranchID: r.BranchID})
		}
		stocks, err := s.lockStocks(ctx, keys)
		if err != nil {
			return err
		}

		for _, l := range r.Lines {
			st := stocks[domain.StockKey{ProductID: l.ProductID, BranchID: r.BranchID}]
			allocs, err := s.reserve(ctx, st, l.Quantity, l.LotID)
			if err != nil {
				return err
			}
			desc := "Returned to supplier on " + number
			if err := s.consume(ctx, st, allocs, domain.OutflowSupplierReturn, domain.MovementSupplierReturn, r.ID, desc); err != nil {
				return err
			}
			l.Allocations = allocs
		}
		r.ComputeTotals()

		if err := s.store.CreateRGRN(ctx, r); err != nil {
			return err
		}
		return s.saveStocks(ctx, stocks)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("rgrn_number", r.RGRNNumber).
		Str("branch_id", r.BranchID).
		Str("total_amount", r.TotalAmount.StringFixed(2)).
		Msg("supplier return created")
	if s.events != nil {
		s.events.RGRNCreated(ctx, r)
	}
	return r, nil
}

// Delete removes a return whose refund has not been paid and puts the
// returned quantity back on the lots it came from.
func (s *RGRNService) Delete(ctx context.Context, id string) error {
	var deleted *domain.RGRN
	err := s.run(ctx, "delete_rgrn", func(ctx context.Context) error {
		r, err := s.store.LockRGRN(ctx, id)
		if err != nil {
			return err
		}
		if !r.Deletable() {
			return errors.BusinessRuleViolation("return " + r.RGRNNumber + " has been refunded and cannot be deleted")
		}

		keys := make([]domain.StockKey, 0, len(r.Lines))
		for _, l := range r.Lines {
			keys = append(keys, domain.StockKey{ProductID: l.ProductID, BranchID: r.BranchID})
		}
		stocks, err := s.lockStocks(ctx, keys)
		if err != nil {
			return err
		}

		for _, line := range r.Lines {
			st := stocks[domain.StockKey{ProductID: line.ProductID, BranchID: r.BranchID}]
			for _, a := range line.Allocations {
				if err := s.reverseReturn(ctx, st, a, r); err != nil {
					return err
				}
			}
		}
		if err := s.saveStocks(ctx, stocks); err != nil {
			return err
		}
		if err := s.store.DeleteRGRN(ctx, id); err != nil {
			return err
		}
		deleted = r
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("rgrn_number", deleted.RGRNNumber).Msg("supplier return deleted, stock restored")
	if s.events != nil {
		s.events.RGRNDeleted(ctx, deleted)
	}
	return nil
}

func (s *RGRNService) reverseReturn(ctx context.Context, st *domain.BranchStock, a domain.Allocation, r *domain.RGRN) error {
	l, err := s.store.LockLot(ctx, a.LotID)
	if err != nil {
		return err
	}
	if err := l.ReverseSupplierReturn(a.Quantity); err != nil {
		return err
	}
	if err := st.CommitIn(a.Quantity); err != nil {
		return err
	}
	lotID := a.LotID
	if err := s.post(ctx, st, domain.Movement{
		Type:        domain.MovementSupplierReturnReversal,
		ReferenceID: r.ID,
		LotID:       &lotID,
		QuantityIn:  a.Quantity,
		Description: "Reversal of " + r.RGRNNumber,
	}); err != nil {
		return err
	}
	// the lot may have been retired while the goods were away
	if !l.Stocked() && s.opts.RetireWritesOff {
		if err := s.writeOff(ctx, st, l, a.Quantity, r.ID); err != nil {
			return err
		}
	}
	return s.store.SaveLot(ctx, l)
}

// UpdateRefundStatus moves the refund to target. refunded, when set,
// replaces the amount refunded so far. Stock is not affected.
func (s *RGRNService) UpdateRefundStatus(ctx context.Context, id string, target domain.RefundStatus, refunded *decimal.Decimal) (*domain.RGRN, error) {
	var out *domain.RGRN
	err := s.run(ctx, "update_refund_status", func(ctx context.Context) error {
		r, err := s.store.LockRGRN(ctx, id)
		if err != nil {
			return err
		}
		action, ok := r.RefundStatus.ActionFor(target)
		if !ok {
			return errors.InvalidStateTransition("rgrn refund", string(r.RefundStatus), "move to "+string(target))
		}
		next, err := r.RefundStatus.Next(action)
		if err != nil {
			return err
		}
		if refunded != nil {
			if refunded.IsNegative() || refunded.GreaterThan(r.TotalAmount) {
				return errors.Validation(map[string]string{
					"refunded_amount": "must be between 0 and " + r.TotalAmount.StringFixed(2),
				})
			}
			r.RefundedAmount = *refunded
		}
		if next == domain.RefundPaid && refunded == nil {
			r.RefundedAmount = r.TotalAmount
		}
		r.RefundStatus = next
		if err := s.store.SaveRGRN(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("rgrn_number", out.RGRNNumber).Str("refund_status", string(out.RefundStatus)).Msg("refund status updated")
	return out, nil
}

// Get gets a supplier return by ID
func (s *RGRNService) Get(ctx context.Context, id string) (*domain.RGRN, error) {
	return s.store.GetRGRN(ctx, id)
}

// List lists supplier returns newest first
func (s *RGRNService) List(ctx context.Context, f domain.RGRNFilter) ([]*domain.RGRN, int64, error) {
	return s.store.ListRGRNs(ctx, f)
}

func checkRGRNLines(r *domain.RGRN) error {
	details := map[string]string{}
	if strings.TrimSpace(r.ReturnReason) == "" {
		details["return_reason"] = "is required"
	}
	if len(r.Lines) == 0 {
		details["lines"] = "must contain at least 1 item"
	}
	for i, l := range r.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.Quantity <= 0 {
			details[field+".quantity"] = "must be greater than 0"
		}
		if l.UnitPrice.IsNegative() {
			details[field+".unit_price"] = "must be at least 0"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
