package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

func newer(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}

// AppendBinCard appends a movement ledger entry.
func (s *Store) AppendBinCard(ctx context.Context, e *domain.BinCardEntry) error {
	return s.write(ctx, func(tx *memTx) error {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		c := *e
		s.bincard = append(s.bincard, &c)
		tx.onRollback(func() {
			for i, cur := range s.bincard {
				if cur == &c {
					s.bincard = append(s.bincard[:i], s.bincard[i+1:]...)
					return
				}
			}
		})
		return nil
	})
}

// ListBinCard returns matching entries in the order they were written.
func (s *Store) ListBinCard(ctx context.Context, f domain.BinCardFilter) ([]*domain.BinCardEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.BinCardEntry
	for _, e := range s.bincard {
		if f.Match(e) {
			c := *e
			out = append(out, &c)
		}
	}

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}

// CreateAlert inserts an alert.
func (s *Store) CreateAlert(ctx context.Context, a *domain.Alert) error {
	return s.write(ctx, func(tx *memTx) error {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		s.alerts[a.ID] = cloneAlert(a)
		id := a.ID
		tx.onRollback(func() { delete(s.alerts, id) })
		return nil
	})
}

// HasOpenAlert reports whether an unacknowledged alert with key exists.
func (s *Store) HasOpenAlert(ctx context.Context, key domain.OpenAlertKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if key.Matches(a) {
			return true, nil
		}
	}
	return false, nil
}

// GetAlert reads an alert.
func (s *Store) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.NotFound("alert")
	}
	return cloneAlert(a), nil
}

// LockAlert locks and returns an alert.
func (s *Store) LockAlert(ctx context.Context, id string) (*domain.Alert, error) {
	if _, err := s.GetAlert(ctx, id); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, "alert:"+id); err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

// SaveAlert overwrites an alert.
func (s *Store) SaveAlert(ctx context.Context, a *domain.Alert) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.alerts[a.ID]
		if !ok {
			return errors.NotFound("alert")
		}
		s.alerts[a.ID] = cloneAlert(a)
		tx.onRollback(func() { s.alerts[prev.ID] = prev })
		return nil
	})
}

// ListAlerts returns matching alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Alert
	for _, a := range s.alerts {
		if f.Match(a) {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}

// UpsertProduct stores the latest product directory data.
func (s *Store) UpsertProduct(ctx context.Context, p *domain.ProductInfo) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, existed := s.products[p.ProductID]
		c := *p
		c.UpdatedAt = s.now()
		s.products[p.ProductID] = &c
		tx.onRollback(func() {
			if existed {
				s.products[p.ProductID] = prev
			} else {
				delete(s.products, p.ProductID)
			}
		})
		return nil
	})
}

// GetProduct reads cached product data.
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.ProductInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, errors.NotFound("product")
	}
	c := *p
	return &c, nil
}
