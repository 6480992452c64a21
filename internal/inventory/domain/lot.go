package domain

import (
	"fmt"
	"time"

	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Lot is one dated receipt of a product at a branch. Its counters always
// satisfy
//
//	Available + Allocated + Sold + ReturnedToSupplier + TransferredOut + WrittenOff + AdjustedOut == Received
//
// Received never changes after the lot is created. AdjustedOut is the net
// quantity taken off by manual corrections and goes negative when a count
// finds more stock than the books.
type Lot struct {
	ID                 string          `db:"id" json:"id"`
	ProductID          string          `db:"product_id" json:"product_id"`
	BranchID           string          `db:"branch_id" json:"branch_id"`
	BatchNumber        string          `db:"batch_number" json:"batch_number"`
	ManufacturingDate  *time.Time      `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ExpiryDate         *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Received           int             `db:"quantity_received" json:"quantity_received"`
	Available          int             `db:"quantity_available" json:"quantity_available"`
	Allocated          int             `db:"quantity_allocated" json:"quantity_allocated"`
	Sold               int             `db:"quantity_sold" json:"quantity_sold"`
	ReturnedToSupplier int             `db:"quantity_returned" json:"quantity_returned"`
	TransferredOut     int             `db:"quantity_transferred_out" json:"quantity_transferred_out"`
	WrittenOff         int             `db:"quantity_written_off" json:"quantity_written_off"`
	AdjustedOut        int             `db:"quantity_adjusted_out" json:"quantity_adjusted_out"`
	UnitCost           decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SellingPrice       decimal.Decimal `db:"selling_price" json:"selling_price"`
	MRP                decimal.Decimal `db:"mrp" json:"mrp"`
	Active             bool            `db:"is_active" json:"is_active"`
	Expired            bool            `db:"is_expired" json:"is_expired"`
	GRNLineID          *string         `db:"grn_line_id" json:"grn_line_id,omitempty"`
	SourceLotID        *string         `db:"source_lot_id" json:"source_lot_id,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy.
func (l *Lot) Clone() *Lot {
	c := *l
	if l.ManufacturingDate != nil {
		t := *l.ManufacturingDate
		c.ManufacturingDate = &t
	}
	if l.ExpiryDate != nil {
		t := *l.ExpiryDate
		c.ExpiryDate = &t
	}
	if l.GRNLineID != nil {
		s := *l.GRNLineID
		c.GRNLineID = &s
	}
	if l.SourceLotID != nil {
		s := *l.SourceLotID
		c.SourceLotID = &s
	}
	return &c
}

// Balanced reports whether the lot's counters add up to what was received.
func (l *Lot) Balanced() bool {
	return l.Available >= 0 && l.Allocated >= 0 && l.Sold >= 0 &&
		l.ReturnedToSupplier >= 0 && l.TransferredOut >= 0 && l.WrittenOff >= 0 &&
		l.Available+l.Allocated+l.Sold+l.ReturnedToSupplier+l.TransferredOut+l.WrittenOff+l.AdjustedOut == l.Received
}

// Stocked reports whether the lot still counts toward its branch aggregate.
func (l *Lot) Stocked() bool {
	return l.Active && !l.Expired
}

// PastExpiry reports whether the expiry date is before asOf's calendar day.
func (l *Lot) PastExpiry(asOf time.Time) bool {
	return l.ExpiryDate != nil && DaysUntil(*l.ExpiryDate, asOf) < 0
}

// Sellable reports whether FEFO may take stock from the lot on asOf.
func (l *Lot) Sellable(asOf time.Time) bool {
	return l.Stocked() && l.Available > 0 && !l.PastExpiry(asOf)
}

// Value is the selling value of the lot's available quantity.
func (l *Lot) Value() decimal.Decimal {
	return l.SellingPrice.Mul(decimal.NewFromInt(int64(l.Available)))
}

// Reserve moves qty from available to allocated.
func (l *Lot) Reserve(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if !l.Stocked() {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s is not active", l.BatchNumber))
	}
	if l.Available < qty {
		return errors.InsufficientStock(l.ProductID, l.BranchID, qty, l.Available).
			WithDetails(map[string]string{
				"lot_id":       l.ID,
				"batch_number": l.BatchNumber,
				"requested":    fmt.Sprint(qty),
				"available":    fmt.Sprint(l.Available),
			})
	}
	l.Available -= qty
	l.Allocated += qty
	return nil
}

// Release moves qty from allocated back to available.
func (l *Lot) Release(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if l.Allocated < qty {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s has only %d allocated", l.BatchNumber, l.Allocated))
	}
	l.Allocated -= qty
	l.Available += qty
	return nil
}

// Outflow says where consumed stock went.
type Outflow string

const (
	OutflowSale           Outflow = "SALE"
	OutflowSupplierReturn Outflow = "SUPPLIER_RETURN"
	OutflowTransfer       Outflow = "TRANSFER"
)

// ConsumeReserved removes qty from allocated and books it against out.
func (l *Lot) ConsumeReserved(qty int, out Outflow) error {
	if err := positive(qty); err != nil {
		return err
	}
	if l.Allocated < qty {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s has only %d allocated", l.BatchNumber, l.Allocated))
	}
	l.Allocated -= qty
	switch out {
	case OutflowSale:
		l.Sold += qty
	case OutflowSupplierReturn:
		l.ReturnedToSupplier += qty
	case OutflowTransfer:
		l.TransferredOut += qty
	default:
		return errors.Internal("unknown outflow " + string(out))
	}
	return nil
}

// ReturnFromCustomer puts qty previously sold back on the shelf.
func (l *Lot) ReturnFromCustomer(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if l.Sold < qty {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s has only %d sold", l.BatchNumber, l.Sold))
	}
	l.Sold -= qty
	l.Available += qty
	return nil
}

// ReverseSupplierReturn puts qty previously returned to the supplier back on the shelf.
func (l *Lot) ReverseSupplierReturn(qty int) error {
	if err := positive(qty); err != nil {
		return err
	}
	if l.ReturnedToSupplier < qty {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s has only %d returned to supplier", l.BatchNumber, l.ReturnedToSupplier))
	}
	l.ReturnedToSupplier -= qty
	l.Available += qty
	return nil
}

// Retire flags the lot expired and inactive. With writeOff the remaining
// available quantity moves to WrittenOff and is returned so the caller can
// take it off the aggregate.
func (l *Lot) Retire(writeOff bool) int {
	l.Expired = true
	l.Active = false
	if !writeOff {
		return 0
	}
	qty := l.Available
	l.WrittenOff += qty
	l.Available = 0
	return qty
}

// Adjust corrects the available quantity by delta after a stock count.
func (l *Lot) Adjust(delta int) error {
	if delta == 0 {
		return errors.Validation(map[string]string{"delta": "must not be 0"})
	}
	if !l.Stocked() {
		return errors.BusinessRuleViolation(fmt.Sprintf("lot %s is not active", l.BatchNumber))
	}
	if l.Available+delta < 0 {
		return errors.InsufficientStock(l.ProductID, l.BranchID, -delta, l.Available).
			WithDetails(map[string]string{
				"lot_id":       l.ID,
				"batch_number": l.BatchNumber,
				"requested":    fmt.Sprint(-delta),
				"available":    fmt.Sprint(l.Available),
			})
	}
	l.Available += delta
	l.AdjustedOut -= delta
	return nil
}

// Deactivate takes the lot out of service without flagging it expired. The
// remaining available quantity is adjusted out and returned so the caller
// can take it off the aggregate. A lot with open reservations stays active.
func (l *Lot) Deactivate() (int, error) {
	if !l.Stocked() {
		return 0, errors.BusinessRuleViolation(fmt.Sprintf("lot %s is not active", l.BatchNumber))
	}
	if l.Allocated > 0 {
		return 0, errors.BusinessRuleViolation(fmt.Sprintf("lot %s has %d allocated", l.BatchNumber, l.Allocated))
	}
	qty := l.Available
	l.AdjustedOut += qty
	l.Available = 0
	l.Active = false
	return qty, nil
}

func positive(qty int) error {
	if qty <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than 0"})
	}
	return nil
}
