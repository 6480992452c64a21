package memstore

import (
	"context"
	"sort"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// LockStock locks and returns the aggregate, creating it on first use.
func (s *Store) LockStock(ctx context.Context, key domain.StockKey, seed *domain.ProductInfo) (*domain.BranchStock, error) {
	if err := s.lock(ctx, stockLockKey(key)); err != nil {
		return nil, err
	}

	var out *domain.BranchStock
	err := s.write(ctx, func(tx *memTx) error {
		if cur, ok := s.stock[key]; ok {
			out = cur.Clone()
			return nil
		}
		now := s.now()
		created := domain.NewBranchStock(key.ProductID, key.BranchID, seed)
		created.CreatedAt = now
		created.UpdatedAt = now
		s.stock[key] = created
		tx.onRollback(func() { delete(s.stock, key) })
		out = created.Clone()
		return nil
	})
	return out, err
}

// GetStock reads an aggregate without locking.
func (s *Store) GetStock(ctx context.Context, key domain.StockKey) (*domain.BranchStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.stock[key]
	if !ok {
		return nil, errors.NotFound("branch stock")
	}
	return cur.Clone(), nil
}

// SaveStock overwrites an aggregate.
func (s *Store) SaveStock(ctx context.Context, st *domain.BranchStock) error {
	key := st.Key()
	return s.write(ctx, func(tx *memTx) error {
		prev, ok := s.stock[key]
		if !ok {
			return errors.NotFound("branch stock")
		}
		next := st.Clone()
		next.UpdatedAt = s.now()
		s.stock[key] = next
		tx.onRollback(func() { s.stock[key] = prev })
		st.UpdatedAt = next.UpdatedAt
		return nil
	})
}

// ListStock returns aggregates ordered by branch then product.
func (s *Store) ListStock(ctx context.Context, f domain.StockFilter) ([]*domain.BranchStock, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.BranchStock
	for _, st := range s.stock {
		if f.Match(st) {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })

	from, to := f.Window(len(out))
	return out[from:to], int64(len(out)), nil
}

// ListStockBranches returns every branch that has an aggregate.
func (s *Store) ListStockBranches(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for k := range s.stock {
		if _, ok := seen[k.BranchID]; !ok {
			seen[k.BranchID] = struct{}{}
			out = append(out, k.BranchID)
		}
	}
	sort.Strings(out)
	return out, nil
}
