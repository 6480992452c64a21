package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/shopspring/decimal"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product directory entry with defaults
func (f *FixtureFactory) Product(opts ...func(*domain.ProductInfo)) *domain.ProductInfo {
	seq := f.nextSeq()

	p := &domain.ProductInfo{
		ProductID:    fmt.Sprintf("prod-%03d", seq),
		ProductCode:  fmt.Sprintf("P%05d", seq),
		Name:         fmt.Sprintf("Paracetamol 500mg #%d", seq),
		ReorderLevel: 20,
		MinimumStock: 5,
		MaximumStock: 500,
		SellingPrice: decimal.NewFromInt(15),
		CostPrice:    decimal.NewFromInt(10),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithThresholds sets the reorder, minimum and maximum stock levels
func WithThresholds(reorder, minimum, maximum int) func(*domain.ProductInfo) {
	return func(p *domain.ProductInfo) {
		p.ReorderLevel = reorder
		p.MinimumStock = minimum
		p.MaximumStock = maximum
	}
}

// Discontinued marks the product as no longer stocked
func Discontinued() func(*domain.ProductInfo) {
	return func(p *domain.ProductInfo) {
		p.Discontinued = true
	}
}

// GRNLine creates a receipt line for productID
func (f *FixtureFactory) GRNLine(productID string, qty int, expiry time.Time) *domain.GRNLine {
	seq := f.nextSeq()
	e := expiry
	return &domain.GRNLine{
		ProductID:    productID,
		BatchNumber:  fmt.Sprintf("B%04d", seq),
		ExpiryDate:   &e,
		Quantity:     qty,
		UnitCost:     decimal.NewFromInt(10),
		SellingPrice: decimal.NewFromInt(15),
		MRP:          decimal.NewFromInt(18),
	}
}

// GRN creates a draft goods receipt for branchID
func (f *FixtureFactory) GRN(branchID string, lines ...*domain.GRNLine) *domain.GRN {
	seq := f.nextSeq()
	return &domain.GRN{
		BranchID:     branchID,
		SupplierID:   fmt.Sprintf("supplier-%03d", seq),
		ReceivedDate: time.Now().UTC(),
		Lines:        lines,
	}
}

// Lot creates a stocked lot as if approved from a receipt
func (f *FixtureFactory) Lot(productID, branchID string, qty int, expiry *time.Time) *domain.Lot {
	seq := f.nextSeq()
	now := time.Now().UTC()
	return &domain.Lot{
		ID:           uuid.New().String(),
		ProductID:    productID,
		BranchID:     branchID,
		BatchNumber:  fmt.Sprintf("LOT%04d", seq),
		ExpiryDate:   expiry,
		Received:     qty,
		Available:    qty,
		UnitCost:     decimal.NewFromInt(10),
		SellingPrice: decimal.NewFromInt(15),
		MRP:          decimal.NewFromInt(18),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Transfer creates a pending transfer request
func (f *FixtureFactory) Transfer(from, to string, items ...*domain.TransferItem) *domain.Transfer {
	return &domain.Transfer{
		FromBranchID: from,
		ToBranchID:   to,
		TransferDate: time.Now().UTC(),
		Items:        items,
	}
}

// TransferItem creates a transfer item requesting qty of productID
func (f *FixtureFactory) TransferItem(productID string, qty int) *domain.TransferItem {
	return &domain.TransferItem{ProductID: productID, QuantityRequested: qty}
}
