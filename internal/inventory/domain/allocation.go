package domain

import (
	"sort"
	"time"

	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Allocation is the quantity taken from one lot.
type Allocation struct {
	LotID        string          `db:"lot_id" json:"lot_id"`
	BatchNumber  string          `db:"batch_number" json:"batch_number"`
	ExpiryDate   *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitCost     decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
}

// TotalQuantity sums the allocated quantities.
func TotalQuantity(allocs []Allocation) int {
	total := 0
	for _, a := range allocs {
		total += a.Quantity
	}
	return total
}

// SortFEFO orders lots by expiry date, earliest first. Lots without an expiry
// date go last; ties fall back to creation time and then id.
func SortFEFO(lots []*Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
}

// PlanFEFO greedily takes qty from the sellable lots, earliest expiry first,
// splitting across as many lots as needed. It does not mutate the lots. When
// the sellable total is short of qty it returns InsufficientStock and no plan.
func PlanFEFO(productID, branchID string, lots []*Lot, qty int, asOf time.Time) ([]Allocation, error) {
	if err := positive(qty); err != nil {
		return nil, err
	}

	eligible := make([]*Lot, 0, len(lots))
	total := 0
	for _, l := range lots {
		if l.ProductID != productID || l.BranchID != branchID || !l.Sellable(asOf) {
			continue
		}
		eligible = append(eligible, l)
		total += l.Available
	}
	if total < qty {
		return nil, errors.InsufficientStock(productID, branchID, qty, total)
	}

	SortFEFO(eligible)

	plan := make([]Allocation, 0, 2)
	remaining := qty
	for _, l := range eligible {
		if remaining == 0 {
			break
		}
		take := l.Available
		if take > remaining {
			take = remaining
		}
		plan = append(plan, allocationFrom(l, take))
		remaining -= take
	}
	return plan, nil
}

// PlanPinned takes qty from one caller-chosen lot, bypassing FEFO order.
func PlanPinned(productID, branchID string, lot *Lot, qty int, asOf time.Time) ([]Allocation, error) {
	if err := positive(qty); err != nil {
		return nil, err
	}
	if lot.ProductID != productID || lot.BranchID != branchID {
		return nil, errors.BadRequest("lot " + lot.ID + " does not hold this product at this branch")
	}
	if !lot.Sellable(asOf) {
		available := 0
		if lot.Stocked() && !lot.PastExpiry(asOf) {
			available = lot.Available
		}
		return nil, errors.InsufficientStock(productID, branchID, qty, available).
			WithDetails(map[string]string{"lot_id": lot.ID, "requested": itoa(qty), "available": itoa(available)})
	}
	if lot.Available < qty {
		return nil, errors.InsufficientStock(productID, branchID, qty, lot.Available).
			WithDetails(map[string]string{"lot_id": lot.ID, "requested": itoa(qty), "available": itoa(lot.Available)})
	}
	return []Allocation{allocationFrom(lot, qty)}, nil
}

func allocationFrom(l *Lot, qty int) Allocation {
	return Allocation{
		LotID:        l.ID,
		BatchNumber:  l.BatchNumber,
		ExpiryDate:   l.ExpiryDate,
		Quantity:     qty,
		UnitCost:     l.UnitCost,
		SellingPrice: l.SellingPrice,
	}
}
