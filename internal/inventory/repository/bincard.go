package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const binCardTable = "bin_card"

var binCardColumns = []string{
	"id", "product_id", "branch_id", "movement_type", "reference_id", "lot_id",
	"quantity_in", "quantity_out", "running_balance", "description", "created_by", "created_at",
}

// AppendBinCard appends a movement ledger entry. The table rejects updates
// and deletes.
func (s *Store) AppendBinCard(ctx context.Context, e *domain.BinCardEntry) error {
	e.CreatedAt = stamp(e.CreatedAt)

	q := s.builder.Insert(binCardTable).Columns(binCardColumns...).Values(
		e.ID, e.ProductID, e.BranchID, string(e.MovementType), e.ReferenceID, e.LotID,
		e.QuantityIn, e.QuantityOut, e.Balance, e.Description, e.CreatedBy, e.CreatedAt,
	)
	_, err := s.exec(ctx, q)
	return translate(err, "bin card entry", "append bin card entry")
}

// ListBinCard returns matching entries in the order they were written.
func (s *Store) ListBinCard(ctx context.Context, f domain.BinCardFilter) ([]*domain.BinCardEntry, int64, error) {
	base := s.builder.Select().From(binCardTable)
	if f.ProductID != "" {
		base = base.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.BranchID != "" {
		base = base.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	if f.MovementType != "" {
		base = base.Where(squirrel.Eq{"movement_type": string(f.MovementType)})
	}
	if f.ReferenceID != "" {
		base = base.Where(squirrel.Eq{"reference_id": f.ReferenceID})
	}
	if f.From != nil {
		base = base.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		base = base.Where(squirrel.LtOrEq{"created_at": *f.To})
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "bin card entry", "count bin card")
	}

	q := paginate(base.Columns(binCardColumns...).OrderBy("seq"), f.Page)
	var out []*domain.BinCardEntry
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "bin card entry", "list bin card")
	}
	return out, total, nil
}
