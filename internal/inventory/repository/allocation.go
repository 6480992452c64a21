package repository

import (
	"context"

	"github.com/lib/pq"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

var allocationColumns = []string{
	"lot_id", "batch_number", "expiry_date", "quantity", "unit_cost", "selling_price",
}

// allocationRow is a stored allocation tagged with the line or item that holds it.
type allocationRow struct {
	OwnerID  string `db:"owner_id"`
	Position int    `db:"position"`
	domain.Allocation
}

func (s *Store) insertAllocations(ctx context.Context, table, ownerColumn, ownerID string, allocs []domain.Allocation) error {
	if len(allocs) == 0 {
		return nil
	}
	cols := append([]string{ownerColumn, "position"}, allocationColumns...)
	q := s.builder.Insert(table).Columns(cols...)
	for i, a := range allocs {
		q = q.Values(ownerID, i+1, a.LotID, a.BatchNumber, a.ExpiryDate, a.Quantity, a.UnitCost, a.SellingPrice)
	}
	_, err := s.exec(ctx, q)
	return translate(err, "allocation", "save allocations")
}

func (s *Store) deleteAllocations(ctx context.Context, table, ownerColumn string, ownerIDs []string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	q := s.builder.Delete(table).Where(ownerColumn+" = ANY(?)", pq.Array(ownerIDs))
	_, err := s.exec(ctx, q)
	return translate(err, "allocation", "remove allocations")
}

// loadAllocations returns the allocations of each owner in position order.
func (s *Store) loadAllocations(ctx context.Context, table, ownerColumn string, ownerIDs []string) (map[string][]domain.Allocation, error) {
	out := make(map[string][]domain.Allocation, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}

	cols := append([]string{ownerColumn + " AS owner_id", "position"}, allocationColumns...)
	q := s.builder.Select(cols...).From(table).
		Where(ownerColumn+" = ANY(?)", pq.Array(ownerIDs)).
		OrderBy(ownerColumn, "position")

	var rows []allocationRow
	if err := s.selectAll(ctx, &rows, q); err != nil {
		return nil, translate(err, "allocation", "load allocations")
	}
	for _, r := range rows {
		out[r.OwnerID] = append(out[r.OwnerID], r.Allocation)
	}
	return out, nil
}
