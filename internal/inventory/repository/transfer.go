package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const (
	transferTable           = "transfers"
	transferItemTable       = "transfer_items"
	transferAllocationTable = "transfer_item_allocations"
)

var transferColumns = []string{
	"id", "transfer_number", "from_branch_id", "to_branch_id", "status", "transfer_date",
	"expected_date", "received_date", "dispatched_at", "remarks", "rejection_reason",
	"cancellation_reason", "created_by", "approved_by", "approved_at", "received_by",
	"created_at", "updated_at",
}

var transferItemColumns = []string{
	"id", "transfer_id", "product_id", "lot_id", "quantity_requested",
	"quantity_transferred", "quantity_received", "remarks",
}

// CreateTransfer inserts a transfer with its items.
func (s *Store) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		t.CreatedAt = stamp(t.CreatedAt)
		t.UpdatedAt = t.CreatedAt

		q := s.builder.Insert(transferTable).Columns(transferColumns...).Values(
			t.ID, t.TransferNumber, t.FromBranchID, t.ToBranchID, string(t.Status), t.TransferDate,
			t.ExpectedDate, t.ReceivedDate, t.DispatchedAt, t.Remarks, t.RejectionReason,
			t.CancellationReason, t.CreatedBy, t.ApprovedBy, t.ApprovedAt, t.ReceivedBy,
			t.CreatedAt, t.UpdatedAt,
		)
		if _, err := s.exec(ctx, q); err != nil {
			return translate(err, "transfer", "create transfer")
		}

		for i, it := range t.Items {
			it.TransferID = t.ID
			item := s.builder.Insert(transferItemTable).
				Columns(transferItemColumns...).Columns("line_number").
				Values(it.ID, it.TransferID, it.ProductID, it.LotID, it.QuantityRequested,
					it.QuantityTransferred, it.QuantityReceived, it.Remarks, i+1)
			if _, err := s.exec(ctx, item); err != nil {
				return translate(err, "transfer item", "create transfer item")
			}
			if err := s.insertAllocations(ctx, transferAllocationTable, "item_id", it.ID, it.Allocations); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveTransfer writes the header, item quantities and the reserved lots.
func (s *Store) SaveTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE transfers SET
				status = $2, expected_date = $3, received_date = $4, dispatched_at = $5,
				remarks = $6, rejection_reason = $7, cancellation_reason = $8,
				approved_by = $9, approved_at = $10, received_by = $11, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`

		err := s.q(ctx).QueryRowxContext(ctx, query,
			t.ID, string(t.Status), t.ExpectedDate, t.ReceivedDate, t.DispatchedAt,
			t.Remarks, t.RejectionReason, t.CancellationReason,
			t.ApprovedBy, t.ApprovedAt, t.ReceivedBy,
		).Scan(&t.UpdatedAt)
		if err != nil {
			return translate(err, "transfer", "save transfer")
		}

		ids := make([]string, len(t.Items))
		for i, it := range t.Items {
			ids[i] = it.ID
			upd := s.builder.Update(transferItemTable).
				Set("lot_id", it.LotID).
				Set("quantity_transferred", it.QuantityTransferred).
				Set("quantity_received", it.QuantityReceived).
				Set("remarks", it.Remarks).
				Where(squirrel.Eq{"id": it.ID, "transfer_id": t.ID})
			res, err := s.exec(ctx, upd)
			if err != nil {
				return translate(err, "transfer item", "save transfer item")
			}
			if err := requireRow(res, "transfer item"); err != nil {
				return err
			}
		}

		if err := s.deleteAllocations(ctx, transferAllocationTable, "item_id", ids); err != nil {
			return err
		}
		for _, it := range t.Items {
			if err := s.insertAllocations(ctx, transferAllocationTable, "item_id", it.ID, it.Allocations); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTransfer reads a transfer with its items.
func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.findTransfer(ctx, id, false)
}

// LockTransfer locks the header row and returns the transfer.
func (s *Store) LockTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.findTransfer(ctx, id, true)
}

func (s *Store) findTransfer(ctx context.Context, id string, lock bool) (*domain.Transfer, error) {
	q := s.builder.Select(transferColumns...).From(transferTable).Where(squirrel.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	var t domain.Transfer
	if err := s.get(ctx, &t, q); err != nil {
		return nil, translate(err, "transfer", "get transfer")
	}
	if err := s.loadTransferItems(ctx, []*domain.Transfer{&t}); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransfers returns transfers touching a branch on either side, newest first.
func (s *Store) ListTransfers(ctx context.Context, f domain.TransferFilter) ([]*domain.Transfer, int64, error) {
	base := s.builder.Select().From(transferTable)
	if f.BranchID != "" {
		base = base.Where(squirrel.Or{
			squirrel.Eq{"from_branch_id": f.BranchID},
			squirrel.Eq{"to_branch_id": f.BranchID},
		})
	}
	if f.Status != "" {
		base = base.Where(squirrel.Eq{"status": string(f.Status)})
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "transfer", "count transfers")
	}

	q := paginate(base.Columns(transferColumns...).OrderBy("created_at DESC", "id DESC"), f.Page)
	var out []*domain.Transfer
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "transfer", "list transfers")
	}
	if err := s.loadTransferItems(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) loadTransferItems(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Transfer, len(transfers))
	ids := make([]string, 0, len(transfers))
	for _, t := range transfers {
		t.Items = []*domain.TransferItem{}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	q := s.builder.Select(transferItemColumns...).From(transferItemTable).
		Where("transfer_id = ANY(?)", pq.Array(ids)).
		OrderBy("transfer_id", "line_number")

	var items []*domain.TransferItem
	if err := s.selectAll(ctx, &items, q); err != nil {
		return translate(err, "transfer item", "load transfer items")
	}

	itemIDs := make([]string, len(items))
	for i, it := range items {
		itemIDs[i] = it.ID
	}
	allocs, err := s.loadAllocations(ctx, transferAllocationTable, "item_id", itemIDs)
	if err != nil {
		return err
	}

	for _, it := range items {
		it.Allocations = allocs[it.ID]
		if t, ok := byID[it.TransferID]; ok {
			t.Items = append(t.Items, it)
		}
	}
	return nil
}
