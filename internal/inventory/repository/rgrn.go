package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const (
	rgrnTable           = "rgrns"
	rgrnLineTable       = "rgrn_lines"
	rgrnAllocationTable = "rgrn_line_allocations"
)

var rgrnColumns = []string{
	"id", "rgrn_number", "branch_id", "supplier_id", "original_grn_id", "return_date",
	"return_reason", "refund_status", "total_amount", "refunded_amount", "remarks",
	"created_by", "created_at", "updated_at",
}

var rgrnLineColumns = []string{
	"id", "rgrn_id", "product_id", "lot_id", "quantity", "unit_price", "total_amount", "reason",
}

// CreateRGRN inserts a supplier return with its lines and the lots each line consumed.
func (s *Store) CreateRGRN(ctx context.Context, r *domain.RGRN) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		r.CreatedAt = stamp(r.CreatedAt)
		r.UpdatedAt = r.CreatedAt

		q := s.builder.Insert(rgrnTable).Columns(rgrnColumns...).Values(
			r.ID, r.RGRNNumber, r.BranchID, r.SupplierID, r.OriginalGRNID, r.ReturnDate,
			r.ReturnReason, string(r.RefundStatus), r.TotalAmount, r.RefundedAmount, r.Remarks,
			r.CreatedBy, r.CreatedAt, r.UpdatedAt,
		)
		if _, err := s.exec(ctx, q); err != nil {
			return translate(err, "rgrn", "create rgrn")
		}

		for i, l := range r.Lines {
			l.RGRNID = r.ID
			line := s.builder.Insert(rgrnLineTable).
				Columns(rgrnLineColumns...).Columns("line_number").
				Values(l.ID, l.RGRNID, l.ProductID, l.LotID, l.Quantity, l.UnitPrice, l.TotalAmount, l.Reason, i+1)
			if _, err := s.exec(ctx, line); err != nil {
				return translate(err, "rgrn line", "create rgrn line")
			}
			if err := s.insertAllocations(ctx, rgrnAllocationTable, "line_id", l.ID, l.Allocations); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRGRN writes the header. Lines are fixed once the stock has left.
func (s *Store) SaveRGRN(ctx context.Context, r *domain.RGRN) error {
	query := `
		UPDATE rgrns SET
			supplier_id = $2, return_reason = $3, refund_status = $4,
			total_amount = $5, refunded_amount = $6, remarks = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := s.q(ctx).QueryRowxContext(ctx, query,
		r.ID, r.SupplierID, r.ReturnReason, string(r.RefundStatus),
		r.TotalAmount, r.RefundedAmount, r.Remarks,
	).Scan(&r.UpdatedAt)
	return translate(err, "rgrn", "save rgrn")
}

// GetRGRN reads a supplier return with its lines.
func (s *Store) GetRGRN(ctx context.Context, id string) (*domain.RGRN, error) {
	return s.findRGRN(ctx, id, false)
}

// LockRGRN locks the header row and returns the supplier return.
func (s *Store) LockRGRN(ctx context.Context, id string) (*domain.RGRN, error) {
	return s.findRGRN(ctx, id, true)
}

// DeleteRGRN removes a supplier return; lines and allocations cascade.
func (s *Store) DeleteRGRN(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.builder.Delete(rgrnTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return translate(err, "rgrn", "delete rgrn")
	}
	return requireRow(res, "rgrn")
}

func (s *Store) findRGRN(ctx context.Context, id string, lock bool) (*domain.RGRN, error) {
	q := s.builder.Select(rgrnColumns...).From(rgrnTable).Where(squirrel.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	var r domain.RGRN
	if err := s.get(ctx, &r, q); err != nil {
		return nil, translate(err, "rgrn", "get rgrn")
	}
	if err := s.loadRGRNLines(ctx, []*domain.RGRN{&r}); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRGRNs returns matching supplier returns, newest first.
func (s *Store) ListRGRNs(ctx context.Context, f domain.RGRNFilter) ([]*domain.RGRN, int64, error) {
	base := s.builder.Select().From(rgrnTable)
	if f.BranchID != "" {
		base = base.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	if f.SupplierID != "" {
		base = base.Where(squirrel.Eq{"supplier_id": f.SupplierID})
	}
	if f.OriginalGRNID != "" {
		base = base.Where(squirrel.Eq{"original_grn_id": f.OriginalGRNID})
	}
	if f.RefundStatus != "" {
		base = base.Where(squirrel.Eq{"refund_status": string(f.RefundStatus)})
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "rgrn", "count rgrns")
	}

	q := paginate(base.Columns(rgrnColumns...).OrderBy("created_at DESC", "id DESC"), f.Page)
	var out []*domain.RGRN
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "rgrn", "list rgrns")
	}
	if err := s.loadRGRNLines(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) loadRGRNLines(ctx context.Context, rgrns []*domain.RGRN) error {
	if len(rgrns) == 0 {
		return nil
	}
	byID := make(map[string]*domain.RGRN, len(rgrns))
	ids := make([]string, 0, len(rgrns))
	for _, r := range rgrns {
		r.Lines = []*domain.RGRNLine{}
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	q := s.builder.Select(rgrnLineColumns...).From(rgrnLineTable).
		Where("rgrn_id = ANY(?)", pq.Array(ids)).
		OrderBy("rgrn_id", "line_number")

	var lines []*domain.RGRNLine
	if err := s.selectAll(ctx, &lines, q); err != nil {
		return translate(err, "rgrn line", "load rgrn lines")
	}

	lineIDs := make([]string, len(lines))
	for i, l := range lines {
		lineIDs[i] = l.ID
	}
	allocs, err := s.loadAllocations(ctx, rgrnAllocationTable, "line_id", lineIDs)
	if err != nil {
		return err
	}

	for _, l := range lines {
		l.Allocations = allocs[l.ID]
		if r, ok := byID[l.RGRNID]; ok {
			r.Lines = append(r.Lines, l)
		}
	}
	return nil
}
