package service

import (
	"context"
	"fmt"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// ExpiryService scans lots for approaching expiry, raises alerts and
// retires lots whose expiry date has passed.
type ExpiryService struct {
	*Engine
	logger *logger.Logger
}

// NewExpiryService creates a new expiry service
func NewExpiryService(engine *Engine) *ExpiryService {
	return &ExpiryService{
		Engine: engine,
		logger: engine.logger.WithComponent("expiry"),
	}
}

// Scan returns the active lots of a branch whose expiry date falls within
// [today, today+thresholdDays], earliest first, each with its level. An
// empty branchID scans every branch.
func (s *ExpiryService) Scan(ctx context.Context, branchID string, thresholdDays int) ([]domain.ExpiryCandidate, error) {
	if thresholdDays < 0 {
		return nil, errors.Validation(map[string]string{"threshold_days": "must be at least 0"})
	}
	asOf := s.now()
	today := domain.Date(asOf)
	until := today.AddDate(0, 0, thresholdDays)

	lots, err := s.store.ListLots(ctx, domain.LotFilter{
		BranchID:   branchID,
		State:      domain.LotStateActive,
		ExpiryFrom: &today,
		ExpiryTo:   &until,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ExpiryCandidate, len(lots))
	for i, l := range lots {
		out[i] = domain.Classify(l, asOf)
	}
	return out, nil
}

// GenerateAlerts scans like Scan and stores one alert per matched lot. A
// lot that already has an unacknowledged alert at the same level is
// skipped, so repeated runs do not pile up duplicates.
func (s *ExpiryService) GenerateAlerts(ctx context.Context, branchID string, thresholdDays int) ([]*domain.Alert, error) {
	candidates, err := s.Scan(ctx, branchID, thresholdDays)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var created []*domain.Alert
	for _, c := range candidates {
		a := domain.NewExpiryAlert(newID(), c, now)
		ok, err := s.raise(ctx, a)
		if err != nil {
			return created, fmt.Errorf("failed to raise alert for lot %s: %w", c.Lot.ID, err)
		}
		if ok {
			created = append(created, a)
		}
	}

	s.logger.Info().
		Str("branch_id", branchID).
		Int("matched", len(candidates)).
		Int("created", len(created)).
		Msg("expiry alerts generated")
	return created, nil
}

// raise stores a unless an equivalent open alert exists. It reports whether
// the alert was stored.
func (e *Engine) raise(ctx context.Context, a *domain.Alert) (bool, error) {
	key := domain.OpenAlertKey{
		Type:      a.AlertType,
		Level:     a.Level,
		ProductID: a.ProductID,
		BranchID:  a.BranchID,
		LotID:     a.LotID,
	}
	created := false
	err := e.run(ctx, "raise_alert", func(ctx context.Context) error {
		open, err := e.store.HasOpenAlert(ctx, key)
		if err != nil || open {
			return err
		}
		if err := e.store.CreateAlert(ctx, a); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, errors.ErrConflict) {
		// raced with another scanner on the open-alert index
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if created && e.events != nil {
		e.events.AlertGenerated(ctx, a)
	}
	return created, nil
}

// Acknowledge marks an alert as seen by the current actor. Acknowledging
// twice keeps the first acknowledgement.
func (s *ExpiryService) Acknowledge(ctx context.Context, id string) (*domain.Alert, error) {
	by := actor.OrSystem(ctx)

	var out *domain.Alert
	err := s.run(ctx, "acknowledge_alert", func(ctx context.Context) error {
		a, err := s.store.LockAlert(ctx, id)
		if err != nil {
			return err
		}
		out = a
		if a.Acknowledged {
			return nil
		}
		now := s.now()
		a.Acknowledged = true
		a.AcknowledgedBy = &by.ID
		a.AcknowledgedAt = &now
		return s.store.SaveAlert(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAlert gets an alert by ID
func (s *ExpiryService) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// ListAlerts lists alerts newest first
func (s *ExpiryService) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error) {
	return s.store.ListAlerts(ctx, f)
}

// RetireResult summarizes a retirement sweep.
type RetireResult struct {
	LotIDs     []string `json:"lot_ids"`
	WrittenOff int      `json:"quantity_written_off"`
}

// RetireExpired flips every active lot whose expiry date is before today to
// expired and inactive. When retirement writes off, the remaining available
// quantity also leaves the aggregate with an EXPIRY_WRITE_OFF entry. Each
// lot is retired in its own transaction.
func (s *ExpiryService) RetireExpired(ctx context.Context, branchID string) (*RetireResult, error) {
	asOf := s.now()
	today := domain.Date(asOf)
	lots, err := s.store.ListLots(ctx, domain.LotFilter{
		BranchID:     branchID,
		State:        domain.LotStateActive,
		ExpiryBefore: &today,
	})
	if err != nil {
		return nil, err
	}

	result := &RetireResult{LotIDs: []string{}}
	byBranch := map[string][]string{}
	for _, l := range lots {
		_, qty, err := s.retire(ctx, l.ID)
		if err != nil {
			return result, fmt.Errorf("failed to retire lot %s: %w", l.ID, err)
		}
		result.LotIDs = append(result.LotIDs, l.ID)
		result.WrittenOff += qty
		byBranch[l.BranchID] = append(byBranch[l.BranchID], l.ID)
	}

	if len(result.LotIDs) > 0 {
		s.logger.Info().
			Str("branch_id", branchID).
			Int("lots", len(result.LotIDs)).
			Int("written_off", result.WrittenOff).
			Msg("expired lots retired")
	}
	if s.events != nil {
		for branch, ids := range byBranch {
			s.events.LotsRetired(ctx, branch, ids, today.Format("2006-01-02"))
		}
	}
	return result, nil
}

// MarkLotExpired retires one lot regardless of its expiry date.
func (s *ExpiryService) MarkLotExpired(ctx context.Context, lotID string) (*domain.Lot, error) {
	l, qty, err := s.retire(ctx, lotID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lot_id", lotID).Int("written_off", qty).Msg("lot marked expired")
	if s.events != nil {
		s.events.LotsRetired(ctx, l.BranchID, []string{l.ID}, domain.Date(s.now()).Format("2006-01-02"))
	}
	return l, nil
}

// retire retires one lot and returns it with the quantity written off. A
// lot that is already retired is returned unchanged.
func (s *ExpiryService) retire(ctx context.Context, lotID string) (*domain.Lot, int, error) {
	found, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, 0, err
	}
	key := domain.StockKey{ProductID: found.ProductID, BranchID: found.BranchID}

	var (
		out     *domain.Lot
		removed int
	)
	err = s.run(ctx, "retire_lot", func(ctx context.Context) error {
		removed = 0
		stocks, err := s.lockStocks(ctx, []domain.StockKey{key})
		if err != nil {
			return err
		}
		st := stocks[key]
		l, err := s.store.LockLot(ctx, lotID)
		if err != nil {
			return err
		}
		out = l
		if !l.Stocked() {
			return nil
		}

		removed = l.Retire(s.opts.RetireWritesOff)
		if removed > 0 {
			if err := st.CommitOut(removed); err != nil {
				return err
			}
			if err := s.post(ctx, st, domain.Movement{
				Type:        domain.MovementExpiryWriteOff,
				ReferenceID: lotID,
				LotID:       &lotID,
				QuantityOut: removed,
				Description: "Expired batch " + l.BatchNumber + " written off",
			}); err != nil {
				return err
			}
		}
		if err := s.store.SaveLot(ctx, l); err != nil {
			return err
		}
		return s.saveStocks(ctx, stocks)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, removed, nil
}

// ListExpired lists a branch's retired lots.
func (s *ExpiryService) ListExpired(ctx context.Context, branchID string, page domain.Page) ([]*domain.Lot, error) {
	return s.store.ListLots(ctx, domain.LotFilter{
		BranchID: branchID,
		State:    domain.LotStateExpired,
		Page:     page,
	})
}
