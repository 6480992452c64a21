// Package memstore is an in-memory implementation of the inventory Store.
// It keeps the locking and rollback behaviour of the PostgreSQL store: Lock*
// calls take per-row exclusive locks held until the transaction ends, a lock
// wait longer than the configured timeout fails with ConcurrencyConflict, and
// a failed transaction undoes every write it made.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// DefaultLockTimeout bounds lock waits when none is configured.
const DefaultLockTimeout = 2 * time.Second

// Store keeps inventory state in maps guarded by mu. Row locks are
// one-slot channels keyed by row identity.
type Store struct {
	mu          sync.Mutex
	sems        map[string]chan struct{}
	lockTimeout time.Duration
	now         func() time.Time

	stock     map[domain.StockKey]*domain.BranchStock
	lots      map[string]*domain.Lot
	bincard   []*domain.BinCardEntry
	seqs      map[string]int64
	grns      map[string]*domain.GRN
	rgrns     map[string]*domain.RGRN
	transfers map[string]*domain.Transfer
	alerts    map[string]*domain.Alert
	products  map[string]*domain.ProductInfo
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets how long a Lock* call waits before giving up.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		sems:        make(map[string]chan struct{}),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		stock:       make(map[domain.StockKey]*domain.BranchStock),
		lots:        make(map[string]*domain.Lot),
		seqs:        make(map[string]int64),
		grns:        make(map[string]*domain.GRN),
		rgrns:       make(map[string]*domain.RGRN),
		transfers:   make(map[string]*domain.Transfer),
		alerts:      make(map[string]*domain.Alert),
		products:    make(map[string]*domain.ProductInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type memTx struct {
	held map[string]chan struct{}
	undo []func()
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	return tx
}

// WithTx runs fn in a transaction. Locks are released when it returns; on
// error or panic every write is undone first.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx := &memTx{held: make(map[string]chan struct{})}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			s.release(tx)
			panic(p)
		}
		if err != nil {
			s.rollback(tx)
		}
		s.release(tx)
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (s *Store) rollback(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (s *Store) release(tx *memTx) {
	for _, sem := range tx.held {
		<-sem
	}
	tx.held = nil
}

// lock takes the row lock for key within the transaction in ctx.
func (s *Store) lock(ctx context.Context, key string) error {
	tx := txFrom(ctx)
	if tx == nil {
		return errors.Internal("row lock " + key + " requested outside a transaction")
	}
	if _, ok := tx.held[key]; ok {
		return nil
	}

	s.mu.Lock()
	sem, ok := s.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.sems[key] = sem
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		tx.held[key] = sem
		return nil
	case <-timer.C:
		return errors.ConcurrencyConflict(fmt.Sprintf("timed out waiting for lock on %s", key))
	case <-ctx.Done():
		return errors.ConcurrencyConflict(fmt.Sprintf("cancelled waiting for lock on %s: %v", key, ctx.Err()))
	}
}

// write runs apply under mu inside the transaction in ctx, opening one when
// there is none. apply registers its undo steps on the transaction.
func (s *Store) write(ctx context.Context, apply func(tx *memTx) error) error {
	tx := txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error {
			return s.write(ctx, apply)
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return apply(tx)
}

func (tx *memTx) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// NextSequence increments the counter for prefix and year.
func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s-%d", prefix, year)
	if err := s.lock(ctx, "seq:"+key); err != nil {
		return 0, err
	}

	var next int64
	err := s.write(ctx, func(tx *memTx) error {
		prev := s.seqs[key]
		next = prev + 1
		s.seqs[key] = next
		tx.onRollback(func() { s.seqs[key] = prev })
		return nil
	})
	return next, err
}

func stockLockKey(k domain.StockKey) string { return "stock:" + k.String() }
func lotLockKey(id string) string          { return "lot:" + id }
