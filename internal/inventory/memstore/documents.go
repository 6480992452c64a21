package memstore

import (
	"context"
	"sort"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// CreateGRN inserts a goods receipt.
func (s *Store) CreateGRN(ctx context.Context, g *domain.GRN) error {
	return s.write(ctx, func(tx *memTx) error {
		if _, ok := s.grns[g.ID]; ok {
			return errors.Conflict("grn already exists")
		}
		for _, other := range s.grns {
			if other.GRNNumber == g.GRNNumber {
				return errors.Conflict("document number " + g.GRNNumber + " already exists")
			}
		}
		now := s.now()
		g.CreatedAt, g.UpdatedAt = now, now
		s.grns[g.ID] = cloneGRN(g)
		id := g.ID
		tx.onRollback(func() { delete(s.grns, id) })
		return nil
	})
}

// SaveGRN overwrites a goods receipt and its lines.
func (s *Store) SaveGRN(ctx context.Context, g *domain.GRN) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.grns[g.ID]
		if !ok {
			return errors.NotFound("grn")
		}
		g.UpdatedAt = s.now()
		s.grns[g.ID] = cloneGRN(g)
		tx.onRollback(func() { s.grns[prev.ID] = prev })
		return nil
	})
}

// GetGRN reads a goods receipt.
func (s *Store) GetGRN(ctx context.Context, id string) (*domain.GRN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grns[id]
	if !ok {
		return nil, errors.NotFound("grn")
	}
	return cloneGRN(g), nil
}

// GetGRNByNumber reads a goods receipt by document number.
func (s *Store) GetGRNByNumber(ctx context.Context, number string) (*domain.GRN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grns {
		if g.GRNNumber == number {
			return cloneGRN(g), nil
		}
	}
	return nil, errors.NotFound("grn")
}

// LockGRN locks and returns a goods receipt.
func (s *Store) LockGRN(ctx context.Context, id string) (*domain.GRN, error) {
	if _, err := s.GetGRN(ctx, id); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, "grn:"+id); err != nil {
		return nil, err
	}
	return s.GetGRN(ctx, id)
}

// ListGRNs returns matching receipts, newest first.
func (s *Store) ListGRNs(ctx context.Context, f domain.GRNFilter) ([]*domain.GRN, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.GRN
	for _, g := range s.grns {
		if f.Match(g) {
			out = append(out, cloneGRN(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}

// CreateRGRN inserts a supplier return.
func (s *Store) CreateRGRN(ctx context.Context, r *domain.RGRN) error {
	return s.write(ctx, func(tx *memTx) error {
		if _, ok := s.rgrns[r.ID]; ok {
			return errors.Conflict("rgrn already exists")
		}
		now := s.now()
		r.CreatedAt, r.UpdatedAt = now, now
		s.rgrns[r.ID] = cloneRGRN(r)
		id := r.ID
		tx.onRollback(func() { delete(s.rgrns, id) })
		return nil
	})
}

// SaveRGRN overwrites a supplier return header.
func (s *Store) SaveRGRN(ctx context.Context, r *domain.RGRN) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.rgrns[r.ID]
		if !ok {
			return errors.NotFound("rgrn")
		}
		r.UpdatedAt = s.now()
		s.rgrns[r.ID] = cloneRGRN(r)
		tx.onRollback(func() { s.rgrns[prev.ID] = prev })
		return nil
	})
}

// GetRGRN reads a supplier return.
func (s *Store) GetRGRN(ctx context.Context, id string) (*domain.RGRN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rgrns[id]
	if !ok {
		return nil, errors.NotFound("rgrn")
	}
	return cloneRGRN(r), nil
}

// LockRGRN locks and returns a supplier return.
func (s *Store) LockRGRN(ctx context.Context, id string) (*domain.RGRN, error) {
	if _, err := s.GetRGRN(ctx, id); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, "rgrn:"+id); err != nil {
		return nil, err
	}
	return s.GetRGRN(ctx, id)
}

// DeleteRGRN removes a supplier return.
func (s *Store) DeleteRGRN(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.rgrns[id]
		if !ok {
			return errors.NotFound("rgrn")
		}
		delete(s.rgrns, id)
		tx.onRollback(func() { s.rgrns[id] = prev })
		return nil
	})
}

// ListRGRNs returns matching returns, newest first.
func (s *Store) ListRGRNs(ctx context.Context, f domain.RGRNFilter) ([]*domain.RGRN, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.RGRN
	for _, r := range s.rgrns {
		if f.Match(r) {
			out = append(out, cloneRGRN(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}

// CreateTransfer inserts a transfer.
func (s *Store) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.write(ctx, func(tx *memTx) error {
		if _, ok := s.transfers[t.ID]; ok {
			return errors.Conflict("transfer already exists")
		}
		now := s.now()
		t.CreatedAt, t.UpdatedAt = now, now
		s.transfers[t.ID] = cloneTransfer(t)
		id := t.ID
		tx.onRollback(func() { delete(s.transfers, id) })
		return nil
	})
}

// SaveTransfer overwrites a transfer and its items.
func (s *Store) SaveTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.transfers[t.ID]
		if !ok {
			return errors.NotFound("transfer")
		}
		t.UpdatedAt = s.now()
		s.transfers[t.ID] = cloneTransfer(t)
		tx.onRollback(func() { s.transfers[prev.ID] = prev })
		return nil
	})
}

// GetTransfer reads a transfer.
func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, errors.NotFound("transfer")
	}
	return cloneTransfer(t), nil
}

// LockTransfer locks and returns a transfer.
func (s *Store) LockTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	if _, err := s.GetTransfer(ctx, id); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, "transfer:"+id); err != nil {
		return nil, err
	}
	return s.GetTransfer(ctx, id)
}

// ListTransfers returns matching transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, f domain.TransferFilter) ([]*domain.Transfer, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Transfer
	for _, t := range s.transfers {
		if f.Match(t) {
			out = append(out, cloneTransfer(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}
