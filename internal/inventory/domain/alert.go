package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType separates expiry alerts from low stock alerts.
type AlertType string

const (
	AlertExpiry   AlertType = "EXPIRY"
	AlertLowStock AlertType = "LOW_STOCK"
)

// Alert is a generated stock alert awaiting acknowledgement.
type Alert struct {
	ID                string          `db:"id" json:"id"`
	AlertType         AlertType       `db:"alert_type" json:"alert_type"`
	Level             AlertLevel      `db:"alert_level" json:"alert_level"`
	ProductID         string          `db:"product_id" json:"product_id"`
	BranchID          string          `db:"branch_id" json:"branch_id"`
	LotID             *string         `db:"lot_id" json:"lot_id,omitempty"`
	BatchNumber       *string         `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	DaysToExpiry      *int            `db:"days_to_expiry" json:"days_to_expiry,omitempty"`
	QuantityAvailable int             `db:"quantity_available" json:"quantity_available"`
	BatchValue        decimal.Decimal `db:"batch_value" json:"batch_value"`
	Message           string          `db:"message" json:"message"`
	Acknowledged      bool            `db:"is_acknowledged" json:"is_acknowledged"`
	AcknowledgedBy    *string         `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time      `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// ExpiryCandidate is a lot matched by an expiry scan with its classification.
type ExpiryCandidate struct {
	Lot          *Lot            `json:"lot"`
	DaysToExpiry int             `json:"days_to_expiry"`
	Level        AlertLevel      `json:"alert_level"`
	BatchValue   decimal.Decimal `json:"batch_value"`
}

// Classify scores a lot against asOf.
func Classify(l *Lot, asOf time.Time) ExpiryCandidate {
	days := DaysUntil(*l.ExpiryDate, asOf)
	return ExpiryCandidate{
		Lot:          l,
		DaysToExpiry: days,
		Level:        ClassifyExpiry(days),
		BatchValue:   l.Value(),
	}
}

// NewExpiryAlert builds the alert for a scan candidate.
func NewExpiryAlert(id string, c ExpiryCandidate, now time.Time) *Alert {
	l := c.Lot
	lotID := l.ID
	batch := l.BatchNumber
	expiry := *l.ExpiryDate
	days := c.DaysToExpiry

	var msg string
	if days <= 0 {
		msg = fmt.Sprintf("Batch %s has expired (%d units, value %s)", batch, l.Available, c.BatchValue.StringFixed(2))
	} else {
		msg = fmt.Sprintf("Batch %s expires in %d day(s) (%d units, value %s)", batch, days, l.Available, c.BatchValue.StringFixed(2))
	}

	return &Alert{
		ID:                id,
		AlertType:         AlertExpiry,
		Level:             c.Level,
		ProductID:         l.ProductID,
		BranchID:          l.BranchID,
		LotID:             &lotID,
		BatchNumber:       &batch,
		ExpiryDate:        &expiry,
		DaysToExpiry:      &days,
		QuantityAvailable: l.Available,
		BatchValue:        c.BatchValue,
		Message:           msg,
		CreatedAt:         now,
	}
}

// NewLowStockAlert builds a low stock alert for an aggregate. Stock at or
// below the minimum is critical, otherwise it is a warning.
func NewLowStockAlert(id string, s *BranchStock, sellingPrice decimal.Decimal, now time.Time) *Alert {
	level := LevelWarning
	if s.Available <= s.MinimumStock || s.Available == 0 {
		level = LevelCritical
	}
	return &Alert{
		ID:                id,
		AlertType:         AlertLowStock,
		Level:             level,
		ProductID:         s.ProductID,
		BranchID:          s.BranchID,
		QuantityAvailable: s.Available,
		BatchValue:        sellingPrice.Mul(decimal.NewFromInt(int64(s.Available))),
		Message:           fmt.Sprintf("Available stock %d is at or below reorder level %d", s.Available, s.ReorderLevel),
		CreatedAt:         now,
	}
}
