package domain

import "time"

// MovementType classifies a bin card entry.
type MovementType string

const (
	MovementGRN                    MovementType = "GRN"
	MovementSale                   MovementType = "SALE"
	MovementCustomerReturn         MovementType = "CUSTOMER_RETURN"
	MovementSupplierReturn         MovementType = "SUPPLIER_RETURN"
	MovementSupplierReturnReversal MovementType = "SUPPLIER_RETURN_REVERSAL"
	MovementTransferIn             MovementType = "TRANSFER_IN"
	MovementTransferOut            MovementType = "TRANSFER_OUT"
	MovementExpiryWriteOff         MovementType = "EXPIRY_WRITE_OFF"
	MovementAdjustment             MovementType = "ADJUSTMENT"
)

// ValidMovementType reports whether s names a movement type.
func ValidMovementType(s string) bool {
	switch MovementType(s) {
	case MovementGRN, MovementSale, MovementCustomerReturn, MovementSupplierReturn,
		MovementSupplierReturnReversal, MovementTransferIn, MovementTransferOut,
		MovementExpiryWriteOff, MovementAdjustment:
		return true
	}
	return false
}

// BinCardEntry is one immutable line of the movement ledger.
type BinCardEntry struct {
	ID           string       `db:"id" json:"id"`
	ProductID    string       `db:"product_id" json:"product_id"`
	BranchID     string       `db:"branch_id" json:"branch_id"`
	MovementType MovementType `db:"movement_type" json:"movement_type"`
	ReferenceID  string       `db:"reference_id" json:"reference_id"`
	LotID        *string      `db:"lot_id" json:"lot_id,omitempty"`
	QuantityIn   int          `db:"quantity_in" json:"quantity_in"`
	QuantityOut  int          `db:"quantity_out" json:"quantity_out"`
	Balance      int          `db:"running_balance" json:"running_balance"`
	Description  string       `db:"description" json:"description"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// Movement is what a stock operation asks the bin card to record.
type Movement struct {
	Type        MovementType
	ReferenceID string
	LotID       *string
	QuantityIn  int
	QuantityOut int
	Description string
}

// Post applies m to the aggregate's running balance and returns the entry
// to append. The caller persists both in the same transaction.
func (s *BranchStock) Post(id string, m Movement, by string, at time.Time) *BinCardEntry {
	s.LedgerBalance += m.QuantityIn - m.QuantityOut
	return &BinCardEntry{
		ID:           id,
		ProductID:    s.ProductID,
		BranchID:     s.BranchID,
		MovementType: m.Type,
		ReferenceID:  m.ReferenceID,
		LotID:        m.LotID,
		QuantityIn:   m.QuantityIn,
		QuantityOut:  m.QuantityOut,
		Balance:      s.LedgerBalance,
		Description:  m.Description,
		CreatedBy:    by,
		CreatedAt:    at,
	}
}
