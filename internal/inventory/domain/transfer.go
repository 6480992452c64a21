package domain

import "time"

// TransferStatus is the lifecycle state of an inter-branch transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferApproved  TransferStatus = "APPROVED"
	TransferInTransit TransferStatus = "IN_TRANSIT"
	TransferReceived  TransferStatus = "RECEIVED"
	TransferRejected  TransferStatus = "REJECTED"
	TransferCancelled TransferStatus = "CANCELLED"
)

// TransferAction is something a user can do to a transfer.
type TransferAction string

const (
	TransferActionApprove  TransferAction = "approve"
	TransferActionDispatch TransferAction = "dispatch"
	TransferActionReceive  TransferAction = "receive"
	TransferActionReject   TransferAction = "reject"
	TransferActionCancel   TransferAction = "cancel"
)

var transferTransitions = transitionTable[TransferStatus, TransferAction]{
	TransferPending: {
		TransferActionApprove: TransferApproved,
		TransferActionReject:  TransferRejected,
		TransferActionCancel:  TransferCancelled,
	},
	TransferApproved: {
		TransferActionDispatch: TransferInTransit,
		TransferActionReceive:  TransferReceived,
		TransferActionCancel:   TransferCancelled,
	},
	TransferInTransit: {
		TransferActionReceive: TransferReceived,
		TransferActionCancel:  TransferCancelled,
	},
}

// Next returns the status reached by applying action, or InvalidStateTransition.
func (s TransferStatus) Next(action TransferAction) (TransferStatus, error) {
	return transferTransitions.next("transfer", s, action)
}

// HoldsReservation reports whether the source branch has stock reserved for
// the transfer in this state.
func (s TransferStatus) HoldsReservation() bool {
	return s == TransferApproved || s == TransferInTransit
}

// ValidTransferStatus reports whether s names a status.
func ValidTransferStatus(s string) bool {
	switch TransferStatus(s) {
	case TransferPending, TransferApproved, TransferInTransit, TransferReceived, TransferRejected, TransferCancelled:
		return true
	}
	return false
}

// Transfer moves stock from one branch to another.
type Transfer struct {
	ID                 string          `db:"id" json:"id"`
	TransferNumber     string          `db:"transfer_number" json:"transfer_number"`
	FromBranchID       string          `db:"from_branch_id" json:"from_branch_id"`
	ToBranchID         string          `db:"to_branch_id" json:"to_branch_id"`
	Status             TransferStatus  `db:"status" json:"status"`
	TransferDate       time.Time       `db:"transfer_date" json:"transfer_date"`
	ExpectedDate       *time.Time      `db:"expected_date" json:"expected_date,omitempty"`
	ReceivedDate       *time.Time      `db:"received_date" json:"received_date,omitempty"`
	DispatchedAt       *time.Time      `db:"dispatched_at" json:"dispatched_at,omitempty"`
	Remarks            *string         `db:"remarks" json:"remarks,omitempty"`
	RejectionReason    *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CancellationReason *string         `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	ApprovedBy         *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ReceivedBy         *string         `db:"received_by" json:"received_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
	Items              []*TransferItem `db:"-" json:"items"`
}

// TransferItem is one product line of a transfer. Allocations are the source
// lots reserved for it at approval.
type TransferItem struct {
	ID                  string       `db:"id" json:"id"`
	TransferID          string       `db:"transfer_id" json:"transfer_id"`
	ProductID           string       `db:"product_id" json:"product_id"`
	LotID               *string      `db:"lot_id" json:"lot_id,omitempty"`
	QuantityRequested   int          `db:"quantity_requested" json:"quantity_requested"`
	QuantityTransferred int          `db:"quantity_transferred" json:"quantity_transferred"`
	QuantityReceived    int          `db:"quantity_received" json:"quantity_received"`
	Remarks             *string      `db:"remarks" json:"remarks,omitempty"`
	Allocations         []Allocation `db:"-" json:"allocations,omitempty"`
}

// StockKeys lists the aggregates a transfer touches, in lock order.
func (t *Transfer) StockKeys() []StockKey {
	keys := make([]StockKey, 0, 2*len(t.Items))
	for _, it := range t.Items {
		keys = append(keys,
			StockKey{ProductID: it.ProductID, BranchID: t.FromBranchID},
			StockKey{ProductID: it.ProductID, BranchID: t.ToBranchID},
		)
	}
	return SortKeys(keys)
}
