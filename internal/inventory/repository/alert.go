package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

const alertTable = "stock_alerts"

var alertColumns = []string{
	"id", "alert_type", "alert_level", "product_id", "branch_id", "lot_id", "batch_number",
	"expiry_date", "days_to_expiry", "quantity_available", "batch_value", "message",
	"is_acknowledged", "acknowledged_by", "acknowledged_at", "created_at",
}

// CreateAlert inserts an alert. A second open alert for the same subject
// violates stock_alerts_open_key and comes back as Conflict.
func (s *Store) CreateAlert(ctx context.Context, a *domain.Alert) error {
	a.CreatedAt = stamp(a.CreatedAt)

	q := s.builder.Insert(alertTable).Columns(alertColumns...).Values(
		a.ID, string(a.AlertType), string(a.Level), a.ProductID, a.BranchID, a.LotID, a.BatchNumber,
		a.ExpiryDate, a.DaysToExpiry, a.QuantityAvailable, a.BatchValue, a.Message,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt, a.CreatedAt,
	)
	_, err := s.exec(ctx, q)
	return translate(err, "alert", "create alert")
}

// HasOpenAlert reports whether an unacknowledged alert exists for key.
func (s *Store) HasOpenAlert(ctx context.Context, key domain.OpenAlertKey) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM stock_alerts
			WHERE NOT is_acknowledged
			  AND alert_type = $1 AND alert_level = $2
			  AND product_id = $3 AND branch_id = $4
			  AND lot_id IS NOT DISTINCT FROM $5
		)
	`

	var exists bool
	err := s.q(ctx).GetContext(ctx, &exists, query,
		string(key.Type), string(key.Level), key.ProductID, key.BranchID, key.LotID)
	if err != nil {
		return false, translate(err, "alert", "check open alert")
	}
	return exists, nil
}

// GetAlert reads an alert.
func (s *Store) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	return s.findAlert(ctx, id, false)
}

// LockAlert locks and returns an alert.
func (s *Store) LockAlert(ctx context.Context, id string) (*domain.Alert, error) {
	return s.findAlert(ctx, id, true)
}

func (s *Store) findAlert(ctx context.Context, id string, lock bool) (*domain.Alert, error) {
	q := s.builder.Select(alertColumns...).From(alertTable).Where(squirrel.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	var a domain.Alert
	if err := s.get(ctx, &a, q); err != nil {
		return nil, translate(err, "alert", "get alert")
	}
	return &a, nil
}

// SaveAlert writes the acknowledgement fields.
func (s *Store) SaveAlert(ctx context.Context, a *domain.Alert) error {
	q := s.builder.Update(alertTable).
		Set("is_acknowledged", a.Acknowledged).
		Set("acknowledged_by", a.AcknowledgedBy).
		Set("acknowledged_at", a.AcknowledgedAt).
		Where(squirrel.Eq{"id": a.ID})

	res, err := s.exec(ctx, q)
	if err != nil {
		return translate(err, "alert", "save alert")
	}
	return requireRow(res, "alert")
}

// ListAlerts returns matching alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error) {
	base := s.builder.Select().From(alertTable)
	if f.BranchID != "" {
		base = base.Where(squirrel.Eq{"branch_id": f.BranchID})
	}
	if f.ProductID != "" {
		base = base.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.Type != "" {
		base = base.Where(squirrel.Eq{"alert_type": string(f.Type)})
	}
	if f.Level != "" {
		base = base.Where(squirrel.Eq{"alert_level": string(f.Level)})
	}
	if f.Acknowledged != nil {
		base = base.Where(squirrel.Eq{"is_acknowledged": *f.Acknowledged})
	}

	total, err := s.count(ctx, base)
	if err != nil {
		return nil, 0, translate(err, "alert", "count alerts")
	}

	q := paginate(base.Columns(alertColumns...).OrderBy("created_at DESC", "id DESC"), f.Page)
	var out []*domain.Alert
	if err := s.selectAll(ctx, &out, q); err != nil {
		return nil, 0, translate(err, "alert", "list alerts")
	}
	return out, total, nil
}
