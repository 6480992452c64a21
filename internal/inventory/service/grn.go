package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// GRNService handles the goods receipt workflow. Approval is the only step
// that touches stock: it creates one lot per line.
type GRNService struct {
	*Engine
	logger *logger.Logger
}

// NewGRNService creates a new goods receipt service
func NewGRNService(engine *Engine) *GRNService {
	return &GRNService{
		Engine: engine,
		logger: engine.logger.WithComponent("grn"),
	}
}

// Create records a draft goods receipt. Header amounts are derived from the
// lines.
func (s *GRNService) Create(ctx context.Context, g *domain.GRN) (*domain.GRN, error) {
	if err := s.checkLines(ctx, g.Lines); err != nil {
		return nil, err
	}

	now := s.now()
	g.ID = newID()
	g.Status = domain.GRNDraft
	g.CreatedBy = actor.OrSystem(ctx).ID
	if g.ReceivedDate.IsZero() {
		g.ReceivedDate = domain.Date(now)
	}
	for _, l := range g.Lines {
		l.ID = newID()
		l.GRNID = g.ID
		l.LotID = nil
	}
	g.ComputeTotals()
	g.PaymentStatus = paymentStatus(g)

	err := s.run(ctx, "create_grn", func(ctx context.Context) error {
		number, err := s.nextNumber(ctx, domain.PrefixGRN, g.ReceivedDate)
		if err != nil {
			return err
		}
		g.GRNNumber = number
		return s.store.CreateGRN(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("grn_number", g.GRNNumber).Str("branch_id", g.BranchID).Int("lines", len(g.Lines)).Msg("grn created")
	return g, nil
}

// Update replaces the header fields and lines of a receipt that has not
// been decided yet and recomputes its totals.
func (s *GRNService) Update(ctx context.Context, id string, patch *domain.GRN) (*domain.GRN, error) {
	if err := s.checkLines(ctx, patch.Lines); err != nil {
		return nil, err
	}

	var out *domain.GRN
	err := s.run(ctx, "update_grn", func(ctx context.Context) error {
		g, err := s.store.LockGRN(ctx, id)
		if err != nil {
			return err
		}
		next, err := g.Status.Next(domain.GRNActionUpdate)
		if err != nil {
			return err
		}

		g.Status = next
		g.SupplierID = patch.SupplierID
		g.PurchaseOrderID = patch.PurchaseOrderID
		g.SupplierInvoiceNumber = patch.SupplierInvoiceNumber
		g.SupplierInvoiceDate = patch.SupplierInvoiceDate
		if !patch.ReceivedDate.IsZero() {
			g.ReceivedDate = patch.ReceivedDate
		}
		g.Remarks = patch.Remarks
		g.PaidAmount = patch.PaidAmount
		g.Lines = patch.Lines
		for _, l := range g.Lines {
			l.ID = newID()
			l.GRNID = g.ID
			l.LotID = nil
		}
		g.ComputeTotals()
		g.PaymentStatus = paymentStatus(g)

		if err := s.store.SaveGRN(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Submit sends a draft for approval.
func (s *GRNService) Submit(ctx context.Context, id string) (*domain.GRN, error) {
	return s.transition(ctx, id, domain.GRNActionSubmit, nil)
}

// Reject closes a receipt without touching stock. A reason is required.
func (s *GRNService) Reject(ctx context.Context, id, reason string) (*domain.GRN, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}
	return s.transition(ctx, id, domain.GRNActionReject, func(g *domain.GRN) {
		g.RejectionReason = &reason
	})
}

// Cancel closes a receipt without touching stock.
func (s *GRNService) Cancel(ctx context.Context, id string) (*domain.GRN, error) {
	return s.transition(ctx, id, domain.GRNActionCancel, nil)
}

func (s *GRNService) transition(ctx context.Context, id string, action domain.GRNAction, apply func(g *domain.GRN)) (*domain.GRN, error) {
	var out *domain.GRN
	err := s.run(ctx, string(action)+"_grn", func(ctx context.Context) error {
		g, err := s.store.LockGRN(ctx, id)
		if err != nil {
			return err
		}
		next, err := g.Status.Next(action)
		if err != nil {
			return err
		}
		g.Status = next
		if apply != nil {
			apply(g)
		}
		if err := s.store.SaveGRN(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("grn_number", out.GRNNumber).Str("status", string(out.Status)).Msg("grn status changed")
	return out, nil
}

// Approve receives the goods: every line becomes a new lot, the branch
// aggregates grow by the line quantities and each lot gets a GRN bin card
// entry. Approving twice fails with InvalidStateTransition.
func (s *GRNService) Approve(ctx context.Context, id string) (*domain.GRN, error) {
	by := actor.OrSystem(ctx)

	var out *domain.GRN
	err := s.run(ctx, "approve_grn", func(ctx context.Context) error {
		g, err := s.store.LockGRN(ctx, id)
		if err != nil {
			return err
		}
		next, err := g.Status.Next(domain.GRNActionApprove)
		if err != nil {
			return err
		}

		keys := make([]domain.StockKey, 0, len(g.Lines))
		for _, l := range g.Lines {
			keys = append(keys, domain.StockKey{ProductID: l.ProductID, BranchID: g.BranchID})
		}
		stocks, err := s.lockStocks(ctx, keys)
		if err != nil {
			return err
		}

		now := s.now()
		for _, line := range g.Lines {
			lot := line.NewLot(newID(), g.BranchID, now)
			if err := s.store.CreateLot(ctx, lot); err != nil {
				return err
			}
			line.LotID = &lot.ID

			st := stocks[domain.StockKey{ProductID: line.ProductID, BranchID: g.BranchID}]
			if err := st.CommitIn(line.Quantity); err != nil {
				return err
			}
			if err := s.post(ctx, st, domain.Movement{
				Type:        domain.MovementGRN,
				ReferenceID: g.ID,
				LotID:       &lot.ID,
				QuantityIn:  line.Quantity,
				Description: fmt.Sprintf("%s batch %s", g.GRNNumber, line.BatchNumber),
			}); err != nil {
				return err
			}
		}
		if err := s.saveStocks(ctx, stocks); err != nil {
			return err
		}

		g.Status = next
		g.ApprovedBy = &by.ID
		g.ApprovedByName = &by.Name
		g.ApprovedAt = &now
		if err := s.store.SaveGRN(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("grn_number", out.GRNNumber).
		Str("branch_id", out.BranchID).
		Str("approved_by", by.String()).
		Int("lots", len(out.Lines)).
		Msg("grn approved")
	if s.events != nil {
		s.events.GRNReceived(ctx, out)
	}
	return out, nil
}

// Get gets a goods receipt by ID
func (s *GRNService) Get(ctx context.Context, id string) (*domain.GRN, error) {
	return s.store.GetGRN(ctx, id)
}

// GetByNumber gets a goods receipt by document number
func (s *GRNService) GetByNumber(ctx context.Context, number string) (*domain.GRN, error) {
	return s.store.GetGRNByNumber(ctx, number)
}

// List lists goods receipts newest first
func (s *GRNService) List(ctx context.Context, f domain.GRNFilter) ([]*domain.GRN, int64, error) {
	return s.store.ListGRNs(ctx, f)
}

func (s *GRNService) checkLines(ctx context.Context, lines []*domain.GRNLine) error {
	if len(lines) == 0 {
		return errors.Validation(map[string]string{"lines": "must contain at least 1 item"})
	}
	details := map[string]string{}
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.Quantity <= 0 {
			details[field+".quantity"] = "must be greater than 0"
		}
		if strings.TrimSpace(l.BatchNumber) == "" {
			details[field+".batch_number"] = "is required"
		}
		if l.UnitCost.IsNegative() {
			details[field+".unit_cost"] = "must be at least 0"
		}
		if l.ManufacturingDate != nil && l.ExpiryDate != nil && !l.ExpiryDate.After(*l.ManufacturingDate) {
			details[field+".expiry_date"] = "must be after manufacturing_date"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}

	for _, l := range lines {
		p, err := s.product(ctx, l.ProductID)
		if err != nil {
			return err
		}
		if p != nil && p.Discontinued {
			return errors.BusinessRuleViolation(fmt.Sprintf("product %s is discontinued", p.Name))
		}
	}
	return nil
}

func paymentStatus(g *domain.GRN) domain.PaymentStatus {
	switch {
	case !g.PaidAmount.IsPositive():
		return domain.PaymentUnpaid
	case g.PaidAmount.GreaterThanOrEqual(g.NetAmount):
		return domain.PaymentPaid
	default:
		return domain.PaymentPartial
	}
}
