package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GRNStatus is the lifecycle state of a goods receipt.
type GRNStatus string

const (
	GRNDraft           GRNStatus = "DRAFT"
	GRNPendingApproval GRNStatus = "PENDING_APPROVAL"
	GRNReceived        GRNStatus = "RECEIVED"
	GRNRejected        GRNStatus = "REJECTED"
	GRNCancelled       GRNStatus = "CANCELLED"
)

// GRNAction is something a user can do to a goods receipt.
type GRNAction string

const (
	GRNActionUpdate  GRNAction = "update"
	GRNActionSubmit  GRNAction = "submit"
	GRNActionApprove GRNAction = "approve"
	GRNActionReject  GRNAction = "reject"
	GRNActionCancel  GRNAction = "cancel"
)

var grnTransitions = transitionTable[GRNStatus, GRNAction]{
	GRNDraft: {
		GRNActionUpdate:  GRNDraft,
		GRNActionSubmit:  GRNPendingApproval,
		GRNActionApprove: GRNReceived,
		GRNActionReject:  GRNRejected,
		GRNActionCancel:  GRNCancelled,
	},
	GRNPendingApproval: {
		GRNActionUpdate:  GRNPendingApproval,
		GRNActionApprove: GRNReceived,
		GRNActionReject:  GRNRejected,
		GRNActionCancel:  GRNCancelled,
	},
}

// Next returns the status reached by applying action, or InvalidStateTransition.
func (s GRNStatus) Next(action GRNAction) (GRNStatus, error) {
	return grnTransitions.next("grn", s, action)
}

// Can reports whether action is allowed from s.
func (s GRNStatus) Can(action GRNAction) bool {
	return grnTransitions.allows(s, action)
}

// ValidGRNStatus reports whether s names a status.
func ValidGRNStatus(s string) bool {
	switch GRNStatus(s) {
	case GRNDraft, GRNPendingApproval, GRNReceived, GRNRejected, GRNCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks how much of a supplier invoice has been settled.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// GRN is a goods receipt note.
type GRN struct {
	ID                    string          `db:"id" json:"id"`
	GRNNumber             string          `db:"grn_number" json:"grn_number"`
	BranchID              string          `db:"branch_id" json:"branch_id"`
	SupplierID            string          `db:"supplier_id" json:"supplier_id"`
	PurchaseOrderID       *string         `db:"purchase_order_id" json:"purchase_order_id,omitempty"`
	SupplierInvoiceNumber *string         `db:"supplier_invoice_number" json:"supplier_invoice_number,omitempty"`
	SupplierInvoiceDate   *time.Time      `db:"supplier_invoice_date" json:"supplier_invoice_date,omitempty"`
	ReceivedDate          time.Time       `db:"received_date" json:"received_date"`
	Status                GRNStatus       `db:"status" json:"status"`
	PaymentStatus         PaymentStatus   `db:"payment_status" json:"payment_status"`
	GrossAmount           decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	DiscountAmount        decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	NetAmount             decimal.Decimal `db:"net_amount" json:"net_amount"`
	PaidAmount            decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	BalanceAmount         decimal.Decimal `db:"balance_amount" json:"balance_amount"`
	Remarks               *string         `db:"remarks" json:"remarks,omitempty"`
	RejectionReason       *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedBy             string          `db:"created_by" json:"created_by"`
	ApprovedBy            *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedByName        *string         `db:"approved_by_name" json:"approved_by_name,omitempty"`
	ApprovedAt            *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
	Lines                 []*GRNLine      `db:"-" json:"lines"`
}

// GRNLine is one product batch on a goods receipt.
type GRNLine struct {
	ID                string          `db:"id" json:"id"`
	GRNID             string          `db:"grn_id" json:"grn_id"`
	LineNumber        int             `db:"line_number" json:"line_number"`
	ProductID         string          `db:"product_id" json:"product_id"`
	BatchNumber       string          `db:"batch_number" json:"batch_number"`
	ManufacturingDate *time.Time      `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Quantity          int             `db:"quantity" json:"quantity"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SellingPrice      decimal.Decimal `db:"selling_price" json:"selling_price"`
	MRP               decimal.Decimal `db:"mrp" json:"mrp"`
	DiscountAmount    decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	LineTotal         decimal.Decimal `db:"line_total" json:"line_total"`
	LotID             *string         `db:"lot_id" json:"lot_id,omitempty"`
}

// ComputeTotals derives line totals and the header amounts from the lines.
// The balance is what remains after PaidAmount.
func (g *GRN) ComputeTotals() {
	gross := decimal.Zero
	discount := decimal.Zero
	for i, l := range g.Lines {
		l.LineNumber = i + 1
		amount := l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
		l.LineTotal = amount.Sub(l.DiscountAmount)
		gross = gross.Add(amount)
		discount = discount.Add(l.DiscountAmount)
	}
	g.GrossAmount = gross
	g.DiscountAmount = discount
	g.NetAmount = gross.Sub(discount)
	g.BalanceAmount = g.NetAmount.Sub(g.PaidAmount)
}

// NewLot builds the lot a receipt line creates on approval.
func (l *GRNLine) NewLot(id, branchID string, now time.Time) *Lot {
	lineID := l.ID
	return &Lot{
		ID:                id,
		ProductID:         l.ProductID,
		BranchID:          branchID,
		BatchNumber:       l.BatchNumber,
		ManufacturingDate: l.ManufacturingDate,
		ExpiryDate:        l.ExpiryDate,
		Received:          l.Quantity,
		Available:         l.Quantity,
		UnitCost:          l.UnitCost,
		SellingPrice:      l.SellingPrice,
		MRP:               l.MRP,
		Active:            true,
		GRNLineID:         &lineID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
