package domain

import (
	"fmt"
	"time"

	"github.com/medlan/medlan-backend/pkg/errors"
)

// BranchStock is the per (product, branch) summary kept in step with the
// lots it covers. OnHand always equals Available + Allocated, and
// LedgerBalance is the running balance of the product's bin card at the branch.
type BranchStock struct {
	ProductID     string    `db:"product_id" json:"product_id"`
	BranchID      string    `db:"branch_id" json:"branch_id"`
	OnHand        int       `db:"quantity_on_hand" json:"quantity_on_hand"`
	Allocated     int       `db:"quantity_allocated" json:"quantity_allocated"`
	Available     int       `db:"quantity_available" json:"quantity_available"`
	ReorderLevel  int       `db:"reorder_level" json:"reorder_level"`
	MinimumStock  int       `db:"minimum_stock" json:"minimum_stock"`
	MaximumStock  int       `db:"maximum_stock" json:"maximum_stock"`
	LedgerBalance int       `db:"ledger_balance" json:"ledger_balance"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StockKey identifies a branch stock aggregate.
type StockKey struct {
	ProductID string `db:"product_id" json:"product_id"`
	BranchID  string `db:"branch_id" json:"branch_id"`
}

func (k StockKey) String() string {
	return k.BranchID + "/" + k.ProductID
}

// Less orders keys by branch then product. Aggregates are always locked in
// this order.
func (k StockKey) Less(o StockKey) bool {
	if k.BranchID != o.BranchID {
		return k.BranchID < o.BranchID
	}
	return k.ProductID < o.ProductID
}

// Key returns the aggregate's identity.
func (s *BranchStock) Key() StockKey {
	return StockKey{ProductID: s.ProductID, BranchID: s.BranchID}
}

// Clone returns a copy.
func (s *BranchStock) Clone() *BranchStock {
	c := *s
	return &c
}

// NewBranchStock returns an empty aggregate seeded with the product's thresholds.
func NewBranchStock(productID, branchID string, product *ProductInfo) *BranchStock {
	s := &BranchStock{ProductID: productID, BranchID: branchID}
	if product != nil {
		s.ReorderLevel = product.ReorderLevel
		s.MinimumStock = product.MinimumStock
		s.MaximumStock = product.MaximumStock
	}
	return s
}

// Consistent reports whether the counters are non-negative and OnHand adds up.
func (s *BranchStock) Consistent() bool {
	return s.Available >= 0 && s.Allocated >= 0 && s.OnHand == s.Available+s.Allocated
}

// LowStock reports whether available stock is at or below the reorder level.
// A zero reorder level disables the check.
func (s *BranchStock) LowStock() bool {
	return s.ReorderLevel > 0 && s.Available <= s.ReorderLevel
}

// Reserve moves qty from available to allocated.
func (s *BranchStock) Reserve(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if s.Available < qty {
		return errors.InsufficientStock(s.ProductID, s.BranchID, qty, s.Available)
	}
	s.Available -= qty
	s.Allocated += qty
	return nil
}

// Release reverses a reservation.
func (s *BranchStock) Release(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if s.Allocated < qty {
		return s.negative("allocated", s.Allocated, qty)
	}
	s.Allocated -= qty
	s.Available += qty
	return nil
}

// CommitIn adds qty to on-hand and available stock.
func (s *BranchStock) CommitIn(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	s.OnHand += qty
	s.Available += qty
	return nil
}

// CommitOut removes qty from on-hand and available stock without a prior
// reservation.
func (s *BranchStock) CommitOut(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if s.Available < qty {
		return errors.InsufficientStock(s.ProductID, s.BranchID, qty, s.Available)
	}
	s.OnHand -= qty
	s.Available -= qty
	return nil
}

// ConsumeReserved completes a reservation: the stock leaves the branch.
func (s *BranchStock) ConsumeReserved(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if s.Allocated < qty || s.OnHand < qty {
		return s.negative("allocated", s.Allocated, qty)
	}
	s.Allocated -= qty
	s.OnHand -= qty
	return nil
}

func (s *BranchStock) negative(counter string, have, qty int) error {
	return errors.BusinessRuleViolation(fmt.Sprintf(
		"%s for product %s at branch %s would go negative (%d - %d)",
		counter, s.ProductID, s.BranchID, have, qty))
}

// LotTotals sums the counters of the given lots.
func LotTotals(lots []*Lot) (available, allocated int) {
	for _, l := range lots {
		available += l.Available
		allocated += l.Allocated
	}
	return available, allocated
}

// CheckAgainstLots compares the aggregate with every lot of its key that
// still carries stock. A mismatch is IntegrityDrift.
func (s *BranchStock) CheckAgainstLots(lots []*Lot) error {
	available, allocated := LotTotals(lots)
	if available == s.Available && allocated == s.Allocated && s.Consistent() {
		return nil
	}
	return errors.IntegrityDrift(s.ProductID, s.BranchID, map[string]string{
		"aggregate_available": fmt.Sprint(s.Available),
		"aggregate_allocated": fmt.Sprint(s.Allocated),
		"aggregate_on_hand":   fmt.Sprint(s.OnHand),
		"lots_available":      fmt.Sprint(available),
		"lots_allocated":      fmt.Sprint(allocated),
	})
}

// RebuildFrom recomputes the quantity counters from lots. Thresholds and the
// ledger balance are kept. It reports whether anything changed.
func (s *BranchStock) RebuildFrom(lots []*Lot) bool {
	available, allocated := LotTotals(lots)
	changed := s.Available != available || s.Allocated != allocated || s.OnHand != available+allocated
	s.Available = available
	s.Allocated = allocated
	s.OnHand = available + allocated
	return changed
}
