package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Inventory events (published)
	EventGRNReceived        = "inventory.grn.received"
	EventRGRNCreated        = "inventory.rgrn.created"
	EventRGRNDeleted        = "inventory.rgrn.deleted"
	EventTransferApproved   = "inventory.transfer.approved"
	EventTransferDispatched = "inventory.transfer.in_transit"
	EventTransferReceived   = "inventory.transfer.received"
	EventTransferRejected   = "inventory.transfer.rejected"
	EventTransferCancelled  = "inventory.transfer.cancelled"
	EventStockAllocated     = "inventory.stock.allocated"
	EventStockDriftRepaired = "inventory.stock.drift_repaired"
	EventAlertGenerated     = "inventory.alert.generated"
	EventLotsRetired        = "inventory.lots.retired"

	// Catalog events (consumed)
	EventProductUpserted = "catalog.product.upserted"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeCatalogEvents   = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// LotQuantity is one lot touched by a stock movement
type LotQuantity struct {
	LotID       string `json:"lot_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int    `json:"quantity"`
}

// StockLine is one product line of a stock document
type StockLine struct {
	ProductID string        `json:"product_id"`
	Quantity  int           `json:"quantity"`
	Lots      []LotQuantity `json:"lots,omitempty"`
}

// GRNReceivedEvent is published when a goods receipt is approved and its lots exist
type GRNReceivedEvent struct {
	GRNID      string          `json:"grn_id"`
	GRNNumber  string          `json:"grn_number"`
	BranchID   string          `json:"branch_id"`
	SupplierID string          `json:"supplier_id"`
	NetAmount  decimal.Decimal `json:"net_amount"`
	Lines      []StockLine     `json:"lines"`
	ApprovedBy string          `json:"approved_by"`
}

// RGRNEvent is published when a supplier return is created or deleted
type RGRNEvent struct {
	RGRNID       string          `json:"rgrn_id"`
	RGRNNumber   string          `json:"rgrn_number"`
	BranchID     string          `json:"branch_id"`
	SupplierID   string          `json:"supplier_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	RefundStatus string          `json:"refund_status"`
	Lines        []StockLine     `json:"lines"`
}

// TransferStatusChangedEvent is published on every transfer transition
type TransferStatusChangedEvent struct {
	TransferID     string      `json:"transfer_id"`
	TransferNumber string      `json:"transfer_number"`
	FromBranchID   string      `json:"from_branch_id"`
	ToBranchID     string      `json:"to_branch_id"`
	Status         string      `json:"status"`
	PerformedBy    string      `json:"performed_by"`
	Lines          []StockLine `json:"lines,omitempty"`
}

// StockAllocatedEvent is published after a sale line consumed lots
type StockAllocatedEvent struct {
	ProductID   string        `json:"product_id"`
	BranchID    string        `json:"branch_id"`
	ReferenceID string        `json:"reference_id"`
	Quantity    int           `json:"quantity"`
	Lots        []LotQuantity `json:"lots"`
}

// StockDriftRepairedEvent is published when a rebuild changed an aggregate
type StockDriftRepairedEvent struct {
	ProductID         string `json:"product_id"`
	BranchID          string `json:"branch_id"`
	PreviousAvailable int    `json:"previous_available"`
	PreviousAllocated int    `json:"previous_allocated"`
	Available         int    `json:"available"`
	Allocated         int    `json:"allocated"`
}

// AlertGeneratedEvent is published when an alert is generated
type AlertGeneratedEvent struct {
	AlertID      string          `json:"alert_id"`
	AlertType    string          `json:"alert_type"`
	Level        string          `json:"level"`
	Message      string          `json:"message"`
	ProductID    string          `json:"product_id"`
	BranchID     string          `json:"branch_id"`
	LotID        string          `json:"lot_id,omitempty"`
	DaysToExpiry *int            `json:"days_to_expiry,omitempty"`
	BatchValue   decimal.Decimal `json:"batch_value"`
}

// LotsRetiredEvent is published after an expiry sweep retired lots
type LotsRetiredEvent struct {
	BranchID string   `json:"branch_id,omitempty"`
	LotIDs   []string `json:"lot_ids"`
	AsOf     string   `json:"as_of"`
}

// ProductUpsertedEvent is consumed from the product catalog
type ProductUpsertedEvent struct {
	ProductID    string          `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	Name         string          `json:"name"`
	ReorderLevel int             `json:"reorder_level"`
	MinimumStock int             `json:"minimum_stock"`
	MaximumStock int             `json:"maximum_stock"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	Discontinued bool            `json:"discontinued"`
}
