package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus tracks the supplier's refund for a return. It has no effect
// on stock.
type RefundStatus string

const (
	RefundPending       RefundStatus = "PENDING"
	RefundPartiallyPaid RefundStatus = "PARTIALLY_PAID"
	RefundPaid          RefundStatus = "PAID"
	RefundCancelled     RefundStatus = "CANCELLED"
)

// RefundAction moves a refund along.
type RefundAction string

const (
	RefundActionPartialPayment RefundAction = "record_partial_payment"
	RefundActionSettle         RefundAction = "settle"
	RefundActionCancel         RefundAction = "cancel"
)

var refundTransitions = transitionTable[RefundStatus, RefundAction]{
	RefundPending: {
		RefundActionPartialPayment: RefundPartiallyPaid,
		RefundActionSettle:         RefundPaid,
		RefundActionCancel:         RefundCancelled,
	},
	RefundPartiallyPaid: {
		RefundActionPartialPayment: RefundPartiallyPaid,
		RefundActionSettle:         RefundPaid,
		RefundActionCancel:         RefundCancelled,
	},
}

// Next returns the status reached by applying action, or InvalidStateTransition.
func (s RefundStatus) Next(action RefundAction) (RefundStatus, error) {
	return refundTransitions.next("rgrn refund", s, action)
}

// ActionFor names the action that reaches target, if any.
func (s RefundStatus) ActionFor(target RefundStatus) (RefundAction, bool) {
	for action, to := range refundTransitions[s] {
		if to == target {
			return action, true
		}
	}
	return "", false
}

// ValidRefundStatus reports whether s names a refund status.
func ValidRefundStatus(s string) bool {
	switch RefundStatus(s) {
	case RefundPending, RefundPartiallyPaid, RefundPaid, RefundCancelled:
		return true
	}
	return false
}

// RGRN is a return of received stock to its supplier.
type RGRN struct {
	ID             string          `db:"id" json:"id"`
	RGRNNumber     string          `db:"rgrn_number" json:"rgrn_number"`
	BranchID       string          `db:"branch_id" json:"branch_id"`
	SupplierID     string          `db:"supplier_id" json:"supplier_id"`
	OriginalGRNID  *string         `db:"original_grn_id" json:"original_grn_id,omitempty"`
	ReturnDate     time.Time       `db:"return_date" json:"return_date"`
	ReturnReason   string          `db:"return_reason" json:"return_reason"`
	RefundStatus   RefundStatus    `db:"refund_status" json:"refund_status"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	RefundedAmount decimal.Decimal `db:"refunded_amount" json:"refunded_amount"`
	Remarks        *string         `db:"remarks" json:"remarks,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Lines          []*RGRNLine     `db:"-" json:"lines"`
}

// RGRNLine is one product returned. LotID pins the return to a lot; the
// lots actually consumed are in Allocations.
type RGRNLine struct {
	ID          string          `db:"id" json:"id"`
	RGRNID      string          `db:"rgrn_id" json:"rgrn_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	LotID       *string         `db:"lot_id" json:"lot_id,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Reason      *string         `db:"reason" json:"reason,omitempty"`
	Allocations []Allocation    `db:"-" json:"allocations"`
}

// Deletable reports whether the return may still be deleted and its stock
// movement reversed.
func (r *RGRN) Deletable() bool {
	return r.RefundStatus != RefundPaid
}

// Price fills the line amounts. A line without a unit price is valued at
// the cost of the lots it consumed.
func (l *RGRNLine) Price() {
	qty := decimal.NewFromInt(int64(l.Quantity))
	if l.UnitPrice.IsZero() && len(l.Allocations) > 0 && l.Quantity > 0 {
		cost := decimal.Zero
		for _, a := range l.Allocations {
			cost = cost.Add(a.UnitCost.Mul(decimal.NewFromInt(int64(a.Quantity))))
		}
		l.TotalAmount = cost
		l.UnitPrice = cost.Div(qty).Round(2)
		return
	}
	l.TotalAmount = l.UnitPrice.Mul(qty)
}

// ComputeTotals prices every line and sums the header amount.
func (r *RGRN) ComputeTotals() {
	total := decimal.Zero
	for _, l := range r.Lines {
		l.Price()
		total = total.Add(l.TotalAmount)
	}
	r.TotalAmount = total
}
