package service

import (
	"context"
	"fmt"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AlertScanner runs the periodic stock checks for a branch: retiring expired
// lots, expiry alerts and low stock alerts. Each check creates alerts with
// deduplication.
type AlertScanner struct {
	expiry        *ExpiryService
	engine        *Engine
	thresholdDays int
	logger        *logger.Logger
}

// NewAlertScanner creates a new alert scanner
func NewAlertScanner(engine *Engine, expiry *ExpiryService, thresholdDays int) *AlertScanner {
	return &AlertScanner{
		expiry:        expiry,
		engine:        engine,
		thresholdDays: thresholdDays,
		logger:        engine.logger.WithComponent("alert_scanner"),
	}
}

// ScanAll scans every branch that holds stock. Logs errors but continues
// scanning.
func (s *AlertScanner) ScanAll(ctx context.Context) error {
	branches, err := s.engine.store.ListStockBranches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list branches: %w", err)
	}

	var lastErr error
	for _, branchID := range branches {
		if err := s.ScanBranch(ctx, branchID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ScanBranch runs all checks for one branch. Logs errors but continues
// with the next check.
func (s *AlertScanner) ScanBranch(ctx context.Context, branchID string) error {
	scanners := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"retire_expired", s.retireExpired},
		{"expiry", s.scanExpiry},
		{"low_stock", s.scanLowStock},
	}

	var lastErr error
	for _, scanner := range scanners {
		if err := scanner.fn(ctx, branchID); err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Str("branch_id", branchID).Msg("alert scan failed")
			lastErr = err
		}
	}
	return lastErr
}

func (s *AlertScanner) retireExpired(ctx context.Context, branchID string) error {
	_, err := s.expiry.RetireExpired(ctx, branchID)
	return err
}

func (s *AlertScanner) scanExpiry(ctx context.Context, branchID string) error {
	_, err := s.expiry.GenerateAlerts(ctx, branchID, s.thresholdDays)
	return err
}

func (s *AlertScanner) scanLowStock(ctx context.Context, branchID string) error {
	_, err := s.ScanLowStock(ctx, branchID)
	return err
}

// ScanLowStock raises a LOW_STOCK alert for every aggregate at the branch
// whose available quantity is at or below its reorder level.
func (s *AlertScanner) ScanLowStock(ctx context.Context, branchID string) ([]*domain.Alert, error) {
	stocks, _, err := s.engine.store.ListStock(ctx, domain.StockFilter{BranchID: branchID, LowStockOnly: true})
	if err != nil {
		return nil, fmt.Errorf("scanLowStock: list stock: %w", err)
	}

	now := s.engine.now()
	var created []*domain.Alert
	for _, st := range stocks {
		price := decimal.Zero
		p, err := s.engine.product(ctx, st.ProductID)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", st.ProductID).Msg("scanLowStock: failed to load product")
			continue
		}
		if p != nil {
			if p.Discontinued {
				continue
			}
			price = p.SellingPrice
		}

		a := domain.NewLowStockAlert(newID(), st, price, now)
		ok, err := s.engine.raise(ctx, a)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", st.ProductID).Msg("scanLowStock: failed to create alert")
			continue
		}
		if ok {
			created = append(created, a)
		}
	}
	return created, nil
}
