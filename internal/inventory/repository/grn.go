package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const (
	grnTable     = "grns"
	grnLineTable = "grn_lines"
)

var grnColumns = []string{
	"id", "grn_number", "branch_id", "supplier_id", "purchase_order_id",
	"supplier_invoice_number", "supplier_invoice_date", "received_date", "status", "payment_status",
	"gross_amount", "discount_amount", "net_amount", "paid_amount", "balance_amount",
	"remarks", "rejection_reason", "created_by", "approved_by", "approved_by_name", "approved_at",
	"created_at", "updated_at",
}

var grnLineColumns = []string{
	"id", "grn_id", "line_number", "product_id", "batch_number", "manufacturing_date", "expiry_date",
	"quantity", "unit_cost", "selling_price", "mrp", "discount_amount", "line_total", "lot_id",
}

// CreateGRN inserts a goods receipt with its lines.
func (s *Store) CreateGRN(ctx context.Context, g *domain.GRN) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO grns (
				id, grn_number, branch_id, supplier_id, purchase_order_id,
				supplier_invoice_number, supplier_invoice_date, received_date, status, payment_status,
				gross_amount, discount_amount, net_amount, paid_amount, balance_amount,
				remarks, rejection_reason, created_by, approved_by, approved_by_name, approved_at
			) VALUES (
				:id, :grn_number, :branch_id, :supplier_id, :purchase_order_id,
				:supplier_invoice_number, :supplier_invoice_date, :received_date, :status, :payment_status,
				:gross_amount, :discount_amount, :net_amount, :paid_amount, :balance_amount,
				:remarks, :rejection_reason, :created_by, :approved_by, :approved_by_name, :approved_at
			)
			RETURNING created_at, updated_at
		`

		rows, err := sqlx.NamedQueryContext(ctx, s.q(ctx), query, g)
		if err != nil {
			return translate(err, "grn", "create grn")
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
				return translate(err, "grn", "create grn")
			}
		}
		if err := rows.Close(); err != nil {
			return translate(err, "grn", "create grn")
		}

		return s.upsertGRNLines(ctx, g)
	})
}

// SaveGRN writes the header and replaces the lines.
func (s *Store) SaveGRN(ctx context.Context, g *domain.GRN) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE grns SET
				branch_id = $2, supplier_id = $3, purchase_order_id = $4,
				supplier_invoice_number = $5, supplier_invoice_date = $6, received_date = $7,
				status = $8, payment_status = $9,
				gross_amount = $10, discount_amount = $11, net_amount = $12,
				paid_amount = $13, balance_amount = $14,
				remarks = $15, rejection_reason = $16,
				approved_by = $17, approved_by_name = $18, approved_at = $19,
				updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`

		err := s.q(ctx).QueryRowxContext(ctx, query,
			g.ID, g.BranchID, g.SupplierID, g.PurchaseOrderID,
			g.SupplierInvoiceNumber, g.SupplierInvoiceDate, g.ReceivedDate,
			string(g.Status), string(g.PaymentStatus),
			g.GrossAmount, g.DiscountAmount, g.NetAmount,
			g.PaidAmount, g.BalanceAmount,
			g.Remarks, g.RejectionReason,
			g.ApprovedBy, g.ApprovedByName, g.ApprovedAt,
		).Scan(&g.UpdatedAt)
		if err != nil {
			return translate(err, "grn", "save grn")
		}

		ids := make([]string, len(g.Lines))
		for i, l := range g.Lines {
			ids[i] = l.ID
		}
		del := s.builder.Delete(grnLineTable).
			Where(squirrel.Eq{"grn_id": g.ID}).
			Where("NOT (id = ANY(?))", pq.Array(ids))
		if _, err := s.exec(ctx, del); err != nil {
			return translate(err, "grn line", "remove grn lines")
		}

		return s.upsertGRNLines(ctx, g)
	})
}

func (s *Store) upsertGRNLines(ctx context.Context, g *domain.GRN) error {
	for _, l := range g.Lines {
		l.GRNID = g.ID
		q := s.builder.Insert(grnLineTable).Columns(grnLineColumns...).Values(
			l.ID, l.GRNID, l.LineNumber, l.ProductID, l.BatchNumber, l.ManufacturingDate, l.ExpiryDate,
			l.Quantity, l.UnitCost, l.SellingPrice, l.MRP, l.DiscountAmount, l.LineTotal, l.LotID,
		).Suffix(`ON CONFLICT (id) DO UPDATE SET
			line_number = EXCLUDED.line_number, product_id = EXCLUDED.product_id,
			batch_number = EXCLUDED.batch_number, manufacturing_date = EXCLUDED.manufacturing_date,
			expiry_date = EXCLUDED.expiry_date, quantity = EXCLUDED.quantity,
			unit_cost = EXCLUDED.unit_cost, selling_price = EXCLUDED.selling_price, mrp = EXCLUDED.mrp,
			discount_amount = EXCLUDED.discount_amount, line_total = EXCLUDED.line_total,
			lot_id = EXCLUDED.lot_id`)
		if _, err := s.exec(ctx, q); err != nil {
			return translate(err, "grn line", "save grn line")
		}
	}
	return nil
}

// GetGRN reads a goods receipt with its lines.
func (s *Store) GetGRN(ctx context.Context, id string) (*domain.GRN, error) {
	return s.findGRN(ctx, squirrel.Eq{"id": id}, false)
}

// GetGRNByNumber reads a goods receipt by document number.
func (s *Store) GetGRNByNumber(ctx context.Context, number string) (*domain.GRN, error) {
	return s.findGRN(ctx, squirrel.Eq{"grn_number": number}, false)
}

// LockGRN locks the header row and returns the receipt.
func (s *Store) LockGRN(ctx context.Context, id string) (*domain.GRN, error) {
	return s.findGRN(ctx, squirrel.Eq{"id": id}, true)
}

func (s *Store) findGRN(ctx context.Context, where squirrel.Eq, lock bool) (*domain.GRN, error) {
	q := s.builder.Select(grnColumns...).From(grnTable).Where(where)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	var g domain.GRN
	if err := s.get(ctx, &g, q); err != nil {
		return nil, translate(err, "grn", "get grn")
	}
	if err := s.loadGRNLines(ctx, []*domain.GRN{&g}); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGRNs returns matching receipts, newest first.
func (s *Store) ListGRNs(ctx context.Context, f domain.GRNFilter) ([]*domain.GRN, int64, error) {
	base := s.builder.Select().From(grnTable)
	if f.BranchID != "" {
		base = base.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	if f.SupplierID != "" {
		base = base.Where(squirrel.Eq{"supplier_id": f.SupplierID})
	}
	if f.Status != "" {
		base = base.Where(squirrel.Eq{"status": string(f.Status)})
	}
	if f.From != nil {
		base = base.Where(squirrel.GtOrEq{"received_date": day(*f.From)})
	}
	if f.To != nil {
		base = base.Where(squirrel.LtOrEq{"received_date": day(*f.To)})
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "grn", "count grns")
	}

	q := paginate(base.Columns(grnColumns...).OrderBy("created_at DESC", "id DESC"), f.Page)
	var out []*domain.GRN
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "grn", "list grns")
	}
	if err := s.loadGRNLines(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) loadGRNLines(ctx context.Context, grns []*domain.GRN) error {
	if len(grns) == 0 {
		return nil
	}
	byID := make(map[string]*domain.GRN, len(grns))
	ids := make([]string, 0, len(grns))
	for _, g := range grns {
		g.Lines = []*domain.GRNLine{}
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}

	q := s.builder.Select(grnLineColumns...).From(grnLineTable).
		Where("grn_id = ANY(?)", pq.Array(ids)).
		OrderBy("grn_id", "line_number")

	var lines []*domain.GRNLine
	if err := s.selectAll(ctx, &lines, q); err != nil {
		return translate(err, "grn line", "load grn lines")
	}
	for _, l := range lines {
		if g, ok := byID[l.GRNID]; ok {
			g.Lines = append(g.Lines, l)
		}
	}
	return nil
}
