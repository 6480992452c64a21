package memstore

import (
	"context"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// CreateLot inserts a lot.
func (s *Store) CreateLot(ctx context.Context, l *domain.Lot) error {
	return s.write(ctx, func(tx *memTx) error {
		if _, ok := s.lots[l.ID]; ok {
			return errors.Conflict("lot " + l.ID + " already exists")
		}
		now := s.now()
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
		s.lots[l.ID] = l.Clone()
		id := l.ID
		tx.onRollback(func() { delete(s.lots, id) })
		return nil
	})
}

// GetLot reads a lot without locking.
func (s *Store) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	return l.Clone(), nil
}

// LockLot locks and returns one lot.
func (s *Store) LockLot(ctx context.Context, id string) (*domain.Lot, error) {
	if _, err := s.GetLot(ctx, id); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, lotLockKey(id)); err != nil {
		return nil, err
	}
	return s.GetLot(ctx, id)
}

// LockLots locks the key's lots that still hold stock, in FEFO order.
func (s *Store) LockLots(ctx context.Context, key domain.StockKey) ([]*domain.Lot, error) {
	s.mu.Lock()
	var candidates []*domain.Lot
	for _, l := range s.lots {
		if l.ProductID == key.ProductID && l.BranchID == key.BranchID && (l.Available > 0 || l.Allocated > 0) {
			candidates = append(candidates, l)
		}
	}
	domain.SortFEFO(candidates)
	order := make([]string, len(candidates))
	for i, l := range candidates {
		order[i] = l.ID
	}
	s.mu.Unlock()

	out := make([]*domain.Lot, 0, len(order))
	for _, id := range order {
		l, err := s.LockLot(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// SaveLot overwrites a lot.
func (s *Store) SaveLot(ctx context.Context, l *domain.Lot) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.lots[l.ID]
		if !ok {
			return errors.NotFound("lot")
		}
		if !l.Balanced() {
			return errors.BusinessRuleViolation("lot " + l.BatchNumber + " quantities do not add up to quantity received")
		}
		next := l.Clone()
		next.UpdatedAt = s.now()
		s.lots[l.ID] = next
		tx.onRollback(func() { s.lots[prev.ID] = prev })
		l.UpdatedAt = next.UpdatedAt
		return nil
	})
}

// ListLots returns matching lots in FEFO order.
func (s *Store) ListLots(ctx context.Context, f domain.LotFilter) ([]*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Lot
	for _, l := range s.lots {
		if f.Match(l) {
			out = append(out, l.Clone())
		}
	}
	domain.SortFEFO(out)

	from, to := f.Window(len(out))
	return out[from:to], nil
}
