package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/lock"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// StockService handles sale allocation, customer returns, stock queries and
// the aggregate repair operation.
type StockService struct {
	*Engine
	logger *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(engine *Engine) *StockService {
	return &StockService{
		Engine: engine,
		logger: engine.logger.WithComponent("stock"),
	}
}

// AllocateRequest asks for stock for one sale line. LotID pins the lot and
// bypasses FEFO.
type AllocateRequest struct {
	ProductID   string
	BranchID    string
	Quantity    int
	LotID       *string
	ReferenceID string
}

// AllocationResult is the outcome of a successful allocation.
type AllocationResult struct {
	Allocations []domain.Allocation `json:"allocations"`
	Stock       *domain.BranchStock `json:"stock"`
}

// Allocate takes stock for a sale line, splitting across lots earliest
// expiry first. Either every lot and the aggregate are updated or nothing is.
func (s *StockService) Allocate(ctx context.Context, req AllocateRequest) (*AllocationResult, error) {
	key := domain.StockKey{ProductID: req.ProductID, BranchID: req.BranchID}
	ref := req.ReferenceID
	if ref == "" {
		ref = newID()
	}

	var result *AllocationResult
	err := s.run(ctx, "allocate", func(ctx context.Context) error {
		stocks, err := s.lockStocks(ctx, []domain.StockKey{key})
		if err != nil {
			return err
		}
		st := stocks[key]

		allocs, err := s.reserve(ctx, st, req.Quantity, req.LotID)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, st, allocs, domain.OutflowSale, domain.MovementSale, ref, "Sale"); err != nil {
			return err
		}
		if err := s.saveStocks(ctx, stocks); err != nil {
			return err
		}
		result = &AllocationResult{Allocations: allocs, Stock: st}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", req.ProductID).
		Str("branch_id", req.BranchID).
		Str("reference_id", ref).
		Int("quantity", req.Quantity).
		Int("lots", len(result.Allocations)).
		Msg("stock allocated")
	if s.events != nil {
		s.events.StockAllocated(ctx, key, ref, result.Allocations)
	}
	return result, nil
}

// ReturnToLot puts quantity a customer brought back onto the lot it was
// sold from.
func (s *StockService) ReturnToLot(ctx context.Context, lotID string, qty int, referenceID string) (*domain.Lot, error) {
	found, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	key := domain.StockKey{ProductID: found.ProductID, BranchID: found.BranchID}

	var out *domain.Lot
	err = s.run(ctx, "return_to_lot", func(ctx context.Context) error {
		stocks, err := s.lockStocks(ctx, []domain.StockKey{key})
		if err != nil {
			return err
		}
		st := stocks[key]

		l, err := s.store.LockLot(ctx, lotID)
		if err != nil {
			return err
		}
		if !l.Stocked() {
			return errors.BusinessRuleViolation(fmt.Sprintf("lot %s is expired or inactive and cannot take returns", l.BatchNumber))
		}
		if err := l.ReturnFromCustomer(qty); err != nil {
			return err
		}
		if err := st.CommitIn(qty); err != nil {
			return err
		}
		if err := s.store.SaveLot(ctx, l); err != nil {
			return err
		}
		if err := s.post(ctx, st, domain.Movement{
			Type:        domain.MovementCustomerReturn,
			ReferenceID: referenceID,
			LotID:       &lotID,
			QuantityIn:  qty,
			Description: "Customer return to batch " + l.BatchNumber,
		}); err != nil {
			return err
		}
		out = l
		return s.saveStocks(ctx, stocks)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lot_id", lotID).Int("quantity", qty).Msg("customer return booked")
	return out, nil
}

// AdjustLot corrects a lot's available quantity by delta after a physical
// count. The aggregate follows and an ADJUSTMENT entry carrying reason goes
// on the bin card.
func (s *StockService) AdjustLot(ctx context.Context, lotID string, delta int, reason string) (*domain.Lot, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}

	out, err := s.correctLot(ctx, "adjust_lot", lotID, func(l *domain.Lot, st *domain.BranchStock) (int, error) {
		if err := l.Adjust(delta); err != nil {
			return 0, err
		}
		if delta > 0 {
			return delta, st.CommitIn(delta)
		}
		return delta, st.CommitOut(-delta)
	}, func(batch string) string { return "Stock adjustment on batch " + batch + ": " + reason })
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lot_id", lotID).Int("delta", delta).Str("reason", reason).Msg("lot adjusted")
	return out, nil
}

// DeactivateLot takes a lot out of service without marking it expired. Its
// remaining available quantity leaves the aggregate as an ADJUSTMENT.
func (s *StockService) DeactivateLot(ctx context.Context, lotID, reason string) (*domain.Lot, error) {
	reason = strings.TrimSpace(reason)
	describe := func(batch string) string {
		if reason == "" {
			return "Batch " + batch + " deactivated"
		}
		return "Batch " + batch + " deactivated: " + reason
	}

	out, err := s.correctLot(ctx, "deactivate_lot", lotID, func(l *domain.Lot, st *domain.BranchStock) (int, error) {
		qty, err := l.Deactivate()
		if err != nil || qty == 0 {
			return 0, err
		}
		return -qty, st.CommitOut(qty)
	}, describe)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lot_id", lotID).Str("reason", reason).Msg("lot deactivated")
	return out, nil
}

// correctLot locks the lot's aggregate and then the lot, applies change and
// posts the signed quantity it returns as an ADJUSTMENT described by
// describe(batch number).
func (s *StockService) correctLot(ctx context.Context, op, lotID string, change func(*domain.Lot, *domain.BranchStock) (int, error), describe func(string) string) (*domain.Lot, error) {
	found, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	key := domain.StockKey{ProductID: found.ProductID, BranchID: found.BranchID}

	var out *domain.Lot
	err = s.run(ctx, op, func(ctx context.Context) error {
		stocks, err := s.lockStocks(ctx, []domain.StockKey{key})
		if err != nil {
			return err
		}
		st := stocks[key]

		l, err := s.store.LockLot(ctx, lotID)
		if err != nil {
			return err
		}
		delta, err := change(l, st)
		if err != nil {
			return err
		}
		if err := s.store.SaveLot(ctx, l); err != nil {
			return err
		}
		if delta != 0 {
			m := domain.Movement{
				Type:        domain.MovementAdjustment,
				ReferenceID: lotID,
				LotID:       &lotID,
				Description: describe(l.BatchNumber),
			}
			if delta > 0 {
				m.QuantityIn = delta
			} else {
				m.QuantityOut = -delta
			}
			if err := s.post(ctx, st, m); err != nil {
				return err
			}
		}
		out = l
		return s.saveStocks(ctx, stocks)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetStock returns the aggregate for key. A pair that has never seen stock
// reads as zero with the product's thresholds.
func (s *StockService) GetStock(ctx context.Context, key domain.StockKey) (*domain.BranchStock, error) {
	st, err := s.store.GetStock(ctx, key)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	p, err := s.product(ctx, key.ProductID)
	if err != nil {
		return nil, err
	}
	return domain.NewBranchStock(key.ProductID, key.BranchID, p), nil
}

// Availability is what can be sold right now for a (product, branch) pair.
type Availability struct {
	Stock    *domain.BranchStock `json:"stock"`
	Sellable int                 `json:"sellable_quantity"`
	Lots     []*domain.Lot       `json:"lots"`
}

// GetAvailability reports the aggregate next to the quantity FEFO could
// actually hand out today, with the sellable lots in FEFO order. It takes no
// locks; allocation re-checks everything under lock.
func (s *StockService) GetAvailability(ctx context.Context, key domain.StockKey) (*Availability, error) {
	st, err := s.GetStock(ctx, key)
	if err != nil {
		return nil, err
	}
	lots, err := s.store.ListLots(ctx, domain.LotFilter{
		ProductID: key.ProductID,
		BranchID:  key.BranchID,
		State:     domain.LotStateActive,
		InStock:   true,
	})
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	out := &Availability{Stock: st, Lots: make([]*domain.Lot, 0, len(lots))}
	for _, l := range lots {
		if !l.Sellable(asOf) {
			continue
		}
		out.Sellable += l.Available
		out.Lots = append(out.Lots, l)
	}
	return out, nil
}

// ListStock lists aggregates.
func (s *StockService) ListStock(ctx context.Context, f domain.StockFilter) ([]*domain.BranchStock, int64, error) {
	return s.store.ListStock(ctx, f)
}

// ListLots lists lots in FEFO order.
func (s *StockService) ListLots(ctx context.Context, f domain.LotFilter) ([]*domain.Lot, error) {
	return s.store.ListLots(ctx, f)
}

// GetLot gets a lot by ID
func (s *StockService) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	return s.store.GetLot(ctx, id)
}

// ListBinCard lists movement ledger entries oldest first.
func (s *StockService) ListBinCard(ctx context.Context, f domain.BinCardFilter) ([]*domain.BinCardEntry, int64, error) {
	return s.store.ListBinCard(ctx, f)
}

// RebuildResult reports what a rebuild changed.
type RebuildResult struct {
	Before  *domain.BranchStock `json:"before"`
	After   *domain.BranchStock `json:"after"`
	Changed bool                `json:"changed"`
}

// RebuildAggregate recomputes the aggregate for key from its lots while
// holding the key's rebuild lock across replicas. When the on-hand quantity
// disagrees with the bin card balance an ADJUSTMENT entry brings the ledger
// in line. Running it again without intervening changes is a no-op.
func (s *StockService) RebuildAggregate(ctx context.Context, key domain.StockKey) (*RebuildResult, error) {
	var result *RebuildResult
	err := s.withLock(ctx, "rebuild:"+key.String(), func(ctx context.Context) error {
		return s.run(ctx, "rebuild_aggregate", func(ctx context.Context) error {
			stocks, err := s.lockStocks(ctx, []domain.StockKey{key})
			if err != nil {
				return err
			}
			st := stocks[key]
			lots, err := s.store.LockLots(ctx, key)
			if err != nil {
				return err
			}

			before := st.Clone()
			changed := st.RebuildFrom(lots)
			if diff := st.OnHand - st.LedgerBalance; diff != 0 {
				m := domain.Movement{
					Type:        domain.MovementAdjustment,
					ReferenceID: "rebuild",
					Description: "Bin card aligned with lot ledger",
				}
				if diff > 0 {
					m.QuantityIn = diff
				} else {
					m.QuantityOut = -diff
				}
				if err := s.post(ctx, st, m); err != nil {
					return err
				}
				changed = true
			}
			if changed {
				if err := s.saveStocks(ctx, stocks); err != nil {
					return err
				}
			}
			result = &RebuildResult{Before: before, After: st, Changed: changed}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.logger.WithStockKey(key.ProductID, key.BranchID).Warn().
			Int("available_before", result.Before.Available).
			Int("available_after", result.After.Available).
			Int("allocated_before", result.Before.Allocated).
			Int("allocated_after", result.After.Allocated).
			Msg("aggregate rebuilt from lots")
		if s.events != nil {
			s.events.DriftRepaired(ctx, result.Before, result.After)
		}
	}
	return result, nil
}

// RebuildBranch rebuilds every aggregate at a branch and returns the ones
// that changed. Aggregates another instance is already rebuilding are skipped.
func (s *StockService) RebuildBranch(ctx context.Context, branchID string) ([]*RebuildResult, error) {
	stocks, _, err := s.store.ListStock(ctx, domain.StockFilter{BranchID: branchID})
	if err != nil {
		return nil, err
	}

	var repaired []*RebuildResult
	for _, st := range stocks {
		res, err := s.RebuildAggregate(ctx, st.Key())
		if errors.Is(err, lock.ErrNotObtained) {
			s.logger.WithStockKey(st.ProductID, st.BranchID).Info().Msg("rebuild already running on another instance, skipping")
			continue
		}
		if err != nil {
			return repaired, fmt.Errorf("failed to rebuild %s: %w", st.Key(), err)
		}
		if res.Changed {
			repaired = append(repaired, res)
		}
	}
	return repaired, nil
}
