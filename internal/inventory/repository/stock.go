package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const stockTable = "branch_stock"

var stockColumns = []string{
	"product_id", "branch_id", "quantity_on_hand", "quantity_allocated", "quantity_available",
	"reorder_level", "minimum_stock", "maximum_stock", "ledger_balance", "created_at", "updated_at",
}

// LockStock locks the aggregate row for key, inserting it from seed first
// when the product has never been stocked at the branch.
func (s *Store) LockStock(ctx context.Context, key domain.StockKey, seed *domain.ProductInfo) (*domain.BranchStock, error) {
	init := domain.NewBranchStock(key.ProductID, key.BranchID, seed)

	insert := s.builder.Insert(stockTable).
		Columns("product_id", "branch_id", "reorder_level", "minimum_stock", "maximum_stock").
		Values(init.ProductID, init.BranchID, init.ReorderLevel, init.MinimumStock, init.MaximumStock).
		Suffix("ON CONFLICT (branch_id, product_id) DO NOTHING")
	if _, err := s.exec(ctx, insert); err != nil {
		return nil, translate(err, "branch stock", "create branch stock")
	}

	q := s.builder.Select(stockColumns...).From(stockTable).
		Where(squirrel.Eq{"branch_id": key.BranchID, "product_id": key.ProductID}).
		Suffix("FOR UPDATE")

	var st domain.BranchStock
	if err := s.get(ctx, &st, q); err != nil {
		return nil, translate(err, "branch stock", "lock branch stock")
	}
	return &st, nil
}

// GetStock reads an aggregate without locking.
func (s *Store) GetStock(ctx context.Context, key domain.StockKey) (*domain.BranchStock, error) {
	q := s.builder.Select(stockColumns...).From(stockTable).
		Where(squirrel.Eq{"branch_id": key.BranchID, "product_id": key.ProductID})

	var st domain.BranchStock
	if err := s.get(ctx, &st, q); err != nil {
		return nil, translate(err, "branch stock", "get branch stock")
	}
	return &st, nil
}

// SaveStock writes the aggregate's counters.
func (s *Store) SaveStock(ctx context.Context, st *domain.BranchStock) error {
	query := `
		UPDATE branch_stock SET
			quantity_on_hand = $3, quantity_allocated = $4, quantity_available = $5,
			reorder_level = $6, minimum_stock = $7, maximum_stock = $8,
			ledger_balance = $9, updated_at = NOW()
		WHERE branch_id = $1 AND product_id = $2
		RETURNING updated_at
	`

	err := s.q(ctx).QueryRowxContext(ctx, query,
		st.BranchID, st.ProductID, st.OnHand, st.Allocated, st.Available,
		st.ReorderLevel, st.MinimumStock, st.MaximumStock, st.LedgerBalance,
	).Scan(&st.UpdatedAt)
	return translate(err, "branch stock", "save branch stock")
}

// ListStock returns aggregates ordered by branch then product.
func (s *Store) ListStock(ctx context.Context, f domain.StockFilter) ([]*domain.BranchStock, int64, error) {
	base := s.builder.Select().From(stockTable)
	if f.ProductID != "" {
		base = base.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.BranchID != "" {
		base = base.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	if f.LowStockOnly {
		base = base.Where("reorder_level > 0 AND quantity_available <= reorder_level")
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "branch stock", "count branch stock")
	}

	q := paginate(base.Columns(stockColumns...).OrderBy("branch_id", "product_id"), f.Page)
	var out []*domain.BranchStock
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "branch stock", "list branch stock")
	}
	return out, total, nil
}

// ListStockBranches returns every branch that has an aggregate.
func (s *Store) ListStockBranches(ctx context.Context) ([]string, error) {
	var out []string
	query := `SELECT DISTINCT branch_id FROM branch_stock ORDER BY branch_id`
	if err := s.q(ctx).SelectContext(ctx, &out, query); err != nil {
		return nil, translate(err, "branch stock", "list stock branches")
	}
	return out, nil
}
