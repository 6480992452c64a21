package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

const lotsTable = "lots"

var lotColumns = []string{
	"id", "product_id", "branch_id", "batch_number", "manufacturing_date", "expiry_date",
	"quantity_received", "quantity_available", "quantity_allocated", "quantity_sold",
	"quantity_returned", "quantity_transferred_out", "quantity_written_off", "quantity_adjusted_out",
	"unit_cost", "selling_price", "mrp", "is_active", "is_expired",
	"grn_line_id", "source_lot_id", "created_at", "updated_at",
}

// Lots hand out stock earliest expiry first; undated lots go last.
const fefoOrder = "expiry_date ASC NULLS LAST, created_at ASC, id ASC"

// CreateLot inserts a lot.
func (s *Store) CreateLot(ctx context.Context, l *domain.Lot) error {
	l.CreatedAt = stamp(l.CreatedAt)
	l.UpdatedAt = l.CreatedAt

	query := `
		INSERT INTO lots (
			id, product_id, branch_id, batch_number, manufacturing_date, expiry_date,
			quantity_received, quantity_available, quantity_allocated, quantity_sold,
			quantity_returned, quantity_transferred_out, quantity_written_off, quantity_adjusted_out,
			unit_cost, selling_price, mrp, is_active, is_expired,
			grn_line_id, source_lot_id, created_at, updated_at
		) VALUES (
			:id, :product_id, :branch_id, :batch_number, :manufacturing_date, :expiry_date,
			:quantity_received, :quantity_available, :quantity_allocated, :quantity_sold,
			:quantity_returned, :quantity_transferred_out, :quantity_written_off, :quantity_adjusted_out,
			:unit_cost, :selling_price, :mrp, :is_active, :is_expired,
			:grn_line_id, :source_lot_id, :created_at, :updated_at
		)
	`

	_, err := sqlx.NamedExecContext(ctx, s.q(ctx), query, l)
	return translate(err, "lot", "create lot")
}

// GetLot reads a lot without locking.
func (s *Store) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	var l domain.Lot
	q := s.builder.Select(lotColumns...).From(lotsTable).Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &l, q); err != nil {
		return nil, translate(err, "lot", "get lot")
	}
	return &l, nil
}

// LockLot locks and returns one lot.
func (s *Store) LockLot(ctx context.Context, id string) (*domain.Lot, error) {
	var l domain.Lot
	q := s.builder.Select(lotColumns...).From(lotsTable).Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE")
	if err := s.get(ctx, &l, q); err != nil {
		return nil, translate(err, "lot", "lock lot")
	}
	return &l, nil
}

// LockLots locks the key's lots that still hold stock. Rows are locked in
// FEFO order so concurrent allocators queue behind each other instead of
// deadlocking.
func (s *Store) LockLots(ctx context.Context, key domain.StockKey) ([]*domain.Lot, error) {
	q := s.builder.Select(lotColumns...).From(lotsTable).
		Where(squirrel.Eq{"product_id": key.ProductID, "branch_id": key.BranchID}).
		Where("(quantity_available > 0 OR quantity_allocated > 0)").
		OrderBy(fefoOrder).
		Suffix("FOR UPDATE")

	var out []*domain.Lot
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, translate(err, "lot", "lock lots")
	}
	return out, nil
}

// SaveLot writes the lot's counters and flags. Identity, dates and prices
// never change after creation.
func (s *Store) SaveLot(ctx context.Context, l *domain.Lot) error {
	if !l.Balanced() {
		return errors.BusinessRuleViolation("lot " + l.BatchNumber + " quantities do not add up to quantity received")
	}

	query := `
		UPDATE lots SET
			quantity_available = $2, quantity_allocated = $3, quantity_sold = $4,
			quantity_returned = $5, quantity_transferred_out = $6, quantity_written_off = $7,
			quantity_adjusted_out = $8, is_active = $9, is_expired = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := s.q(ctx).QueryRowxContext(ctx, query,
		l.ID, l.Available, l.Allocated, l.Sold,
		l.ReturnedToSupplier, l.TransferredOut, l.WrittenOff,
		l.AdjustedOut, l.Active, l.Expired,
	).Scan(&l.UpdatedAt)
	return translate(err, "lot", "save lot")
}

// ListLots returns matching lots in FEFO order.
func (s *Store) ListLots(ctx context.Context, f domain.LotFilter) ([]*domain.Lot, error) {
	q := s.builder.Select(lotColumns...).From(lotsTable)

	if f.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.BranchID != "" {
		q = q.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	switch f.State {
	case domain.LotStateActive:
		q = q.Where(squirrel.Eq{"is_active": true, "is_expired": false})
	case domain.LotStateExpired:
		q = q.Where(squirrel.Eq{"is_expired": true})
	}
	if f.InStock {
		q = q.Where(squirrel.Gt{"quantity_available": 0})
	}
	if f.ExpiryFrom != nil {
		q = q.Where(squirrel.GtOrEq{"expiry_date": day(*f.ExpiryFrom)})
	}
	if f.ExpiryTo != nil {
		q = q.Where(squirrel.LtOrEq{"expiry_date": day(*f.ExpiryTo)})
	}
	if f.ExpiryBefore != nil {
		q = q.Where(squirrel.Lt{"expiry_date": day(*f.ExpiryBefore)})
	}

	q = paginate(q.OrderBy(fefoOrder), f.Page)

	var out []*domain.Lot
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, translate(err, "lot", "list lots")
	}
	return out, nil
}
