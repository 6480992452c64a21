package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/config"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// Locker serializes work across service replicas. *lock.Locker implements it.
type Locker interface {
	Do(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Options tunes the engine.
type Options struct {
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	// RetireWritesOff makes retiring an expired lot also take its remaining
	// available quantity off the branch aggregate and bin card.
	RetireWritesOff bool
	RebuildLockTTL  time.Duration
	Clock           func() time.Time
}

// OptionsFromConfig maps the inventory config section onto Options.
func OptionsFromConfig(cfg *config.InventoryConfig) Options {
	return Options{
		RetryMaxAttempts:     cfg.RetryMaxAttempts,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetireWritesOff:      cfg.RetireWritesOff,
		RebuildLockTTL:       cfg.RebuildLockTTL,
	}
}

// Engine holds what every inventory service shares: the store, the event
// publisher, the cross-replica locker and the stock primitives that keep
// lots, aggregates and the bin card moving together.
type Engine struct {
	store  Store
	events EventPublisher
	locker Locker
	opts   Options
	logger *logger.Logger
}

// NewEngine creates an engine. events and locker may be nil.
func NewEngine(store Store, events EventPublisher, locker Locker, opts Options, log *logger.Logger) *Engine {
	if opts.RetryMaxAttempts < 1 {
		opts.RetryMaxAttempts = 1
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = 50 * time.Millisecond
	}
	if opts.RebuildLockTTL <= 0 {
		opts.RebuildLockTTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:  store,
		events: events,
		locker: locker,
		opts:   opts,
		logger: log,
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Clock().UTC()
}

func newID() string {
	return uuid.NewString()
}

func (e *Engine) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if e.locker == nil {
		return fn(ctx)
	}
	return e.locker.Do(ctx, key, e.opts.RebuildLockTTL, fn)
}

// nextNumber allocates a document number for the current year.
func (e *Engine) nextNumber(ctx context.Context, prefix string, at time.Time) (string, error) {
	year := at.Year()
	seq, err := e.store.NextSequence(ctx, prefix, year)
	if err != nil {
		return "", err
	}
	return domain.DocumentNumber(prefix, year, seq), nil
}

// product returns cached catalog data, or nil when the product is unknown.
func (e *Engine) product(ctx context.Context, productID string) (*domain.ProductInfo, error) {
	p, err := e.store.GetProduct(ctx, productID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// lockStocks locks the aggregates for keys in lock order, creating missing
// ones with thresholds from the product cache.
func (e *Engine) lockStocks(ctx context.Context, keys []domain.StockKey) (map[domain.StockKey]*domain.BranchStock, error) {
	out := make(map[domain.StockKey]*domain.BranchStock, len(keys))
	for _, k := range domain.SortKeys(keys) {
		seed, err := e.product(ctx, k.ProductID)
		if err != nil {
			return nil, err
		}
		st, err := e.store.LockStock(ctx, k, seed)
		if err != nil {
			return nil, err
		}
		out[k] = st
	}
	return out, nil
}

func (e *Engine) saveStocks(ctx context.Context, stocks map[domain.StockKey]*domain.BranchStock) error {
	for _, k := range sortedKeys(stocks) {
		st := stocks[k]
		if !st.Consistent() {
			return errors.IntegrityDrift(st.ProductID, st.BranchID, map[string]string{
				"reason": "aggregate counters do not add up",
			})
		}
		if err := e.store.SaveStock(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(stocks map[domain.StockKey]*domain.BranchStock) []domain.StockKey {
	keys := make([]domain.StockKey, 0, len(stocks))
	for k := range stocks {
		keys = append(keys, k)
	}
	return domain.SortKeys(keys)
}

// post records a movement on st's bin card.
func (e *Engine) post(ctx context.Context, st *domain.BranchStock, m domain.Movement) error {
	entry := st.Post(newID(), m, actor.OrSystem(ctx).ID, e.now())
	return e.store.AppendBinCard(ctx, entry)
}

// reserve picks lots for qty, FEFO or pinned, and moves the quantity from
// available to allocated on those lots and on st. Every stocked lot of the
// key is locked first so the aggregate can be checked against them.
func (e *Engine) reserve(ctx context.Context, st *domain.BranchStock, qty int, pinnedLotID *string) ([]domain.Allocation, error) {
	lots, err := e.store.LockLots(ctx, st.Key())
	if err != nil {
		return nil, err
	}
	if err := st.CheckAgainstLots(lots); err != nil {
		e.logger.WithStockKey(st.ProductID, st.BranchID).Error().
			Err(err).
			Interface("details", detailsOf(err)).
			Msg("integrity drift detected")
		return nil, err
	}

	byID := make(map[string]*domain.Lot, len(lots))
	for _, l := range lots {
		byID[l.ID] = l
	}

	asOf := e.now()
	var plan []domain.Allocation
	if pinnedLotID != nil {
		pinned, ok := byID[*pinnedLotID]
		if !ok {
			// no stock left on it, or it belongs elsewhere; load it for the error
			if pinned, err = e.store.GetLot(ctx, *pinnedLotID); err != nil {
				return nil, err
			}
		}
		plan, err = domain.PlanPinned(st.ProductID, st.BranchID, pinned, qty, asOf)
	} else {
		plan, err = domain.PlanFEFO(st.ProductID, st.BranchID, lots, qty, asOf)
	}
	if err != nil {
		return nil, err
	}

	for _, a := range plan {
		l := byID[a.LotID]
		if err := l.Reserve(a.Quantity); err != nil {
			return nil, err
		}
		if err := e.store.SaveLot(ctx, l); err != nil {
			return nil, err
		}
	}
	if err := st.Reserve(qty); err != nil {
		return nil, err
	}
	return plan, nil
}

// consume completes reservations: the allocated quantity leaves the branch
// as out and is written to the bin card with movement type mt.
func (e *Engine) consume(ctx context.Context, st *domain.BranchStock, allocs []domain.Allocation, out domain.Outflow, mt domain.MovementType, ref, desc string) error {
	for _, a := range allocs {
		l, err := e.store.LockLot(ctx, a.LotID)
		if err != nil {
			return err
		}
		if err := l.ConsumeReserved(a.Quantity, out); err != nil {
			return err
		}
		if err := e.store.SaveLot(ctx, l); err != nil {
			return err
		}
		if err := st.ConsumeReserved(a.Quantity); err != nil {
			return err
		}
		lotID := a.LotID
		if err := e.post(ctx, st, domain.Movement{
			Type:        mt,
			ReferenceID: ref,
			LotID:       &lotID,
			QuantityOut: a.Quantity,
			Description: desc,
		}); err != nil {
			return err
		}
	}
	return nil
}

// release returns reserved quantity to the lots it came from. Stock that
// lands on a lot retired in the meantime is written off straight away when
// retirement writes off.
func (e *Engine) release(ctx context.Context, st *domain.BranchStock, allocs []domain.Allocation, ref string) error {
	for _, a := range allocs {
		l, err := e.store.LockLot(ctx, a.LotID)
		if err != nil {
			return err
		}
		if err := l.Release(a.Quantity); err != nil {
			return err
		}
		if err := st.Release(a.Quantity); err != nil {
			return err
		}
		if !l.Stocked() && e.opts.RetireWritesOff {
			if err := e.writeOff(ctx, st, l, a.Quantity, ref); err != nil {
				return err
			}
		}
		if err := e.store.SaveLot(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// writeOff moves qty of a retired lot's available stock to written off.
func (e *Engine) writeOff(ctx context.Context, st *domain.BranchStock, l *domain.Lot, qty int, ref string) error {
	l.Available -= qty
	l.WrittenOff += qty
	if err := st.CommitOut(qty); err != nil {
		return err
	}
	lotID := l.ID
	return e.post(ctx, st, domain.Movement{
		Type:        domain.MovementExpiryWriteOff,
		ReferenceID: ref,
		LotID:       &lotID,
		QuantityOut: qty,
		Description: "Expired batch " + l.BatchNumber + " written off",
	})
}

func detailsOf(err error) map[string]string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
