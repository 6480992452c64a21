package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/memstore"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	ctx      context.Context
	clock    *clock
	store    *memstore.Store
	events   *recordingEvents
	engine   *service.Engine
	stock    *service.StockService
	grn      *service.GRNService
	rgrn     *service.RGRNService
	transfer *service.TransferService
	expiry   *service.ExpiryService
	scanner  *service.AlertScanner
}

func newFixture(t *testing.T, configure ...func(*service.Options)) *fixture {
	t.Helper()

	c := &clock{now: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)}
	store := memstore.New(memstore.WithClock(c.Now))
	events := &recordingEvents{}

	opts := service.Options{
		RetryMaxAttempts:     3,
		RetryInitialInterval: time.Millisecond,
		RetireWritesOff:      true,
		Clock:                c.Now,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	engine := service.NewEngine(store, events, nil, opts, logger.Nop())
	expiry := service.NewExpiryService(engine)
	return &fixture{
		ctx: actor.WithActor(context.Background(), &actor.Actor{
			ID:    "11111111-1111-1111-1111-111111111111",
			Name:  "Store Keeper",
			Email: "keeper@medlan.local",
		}),
		clock:    c,
		store:    store,
		events:   events,
		engine:   engine,
		stock:    service.NewStockService(engine),
		grn:      service.NewGRNService(engine),
		rgrn:     service.NewRGRNService(engine),
		transfer: service.NewTransferService(engine),
		expiry:   expiry,
		scanner:  service.NewAlertScanner(engine, expiry, 90),
	}
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func key(product, branch string) domain.StockKey {
	return domain.StockKey{ProductID: product, BranchID: branch}
}

// receive books qty of one batch through an approved GRN and returns the lot.
func (f *fixture) receive(t *testing.T, branch, product, batch, expiry string, qty int) *domain.Lot {
	t.Helper()
	g, err := f.grn.Create(f.ctx, &domain.GRN{
		BranchID:   branch,
		SupplierID: "supplier-1",
		Lines: []*domain.GRNLine{{
			ProductID:    product,
			BatchNumber:  batch,
			ExpiryDate:   date(expiry),
			Quantity:     qty,
			UnitCost:     decimal.NewFromInt(10),
			SellingPrice: decimal.NewFromInt(15),
			MRP:          decimal.NewFromInt(16),
		}},
	})
	require.NoError(t, err)
	g, err = f.grn.Approve(f.ctx, g.ID)
	require.NoError(t, err)

	l, err := f.store.GetLot(f.ctx, *g.Lines[0].LotID)
	require.NoError(t, err)
	return l
}

func (f *fixture) lot(t *testing.T, id string) *domain.Lot {
	t.Helper()
	l, err := f.store.GetLot(f.ctx, id)
	require.NoError(t, err)
	return l
}

func (f *fixture) aggregate(t *testing.T, k domain.StockKey) *domain.BranchStock {
	t.Helper()
	st, err := f.stock.GetStock(f.ctx, k)
	require.NoError(t, err)
	return st
}

// assertMatchesLots checks the aggregate against every lot of its key and
// the bin card balance against on-hand.
func (f *fixture) assertMatchesLots(t *testing.T, k domain.StockKey) {
	t.Helper()
	st := f.aggregate(t, k)
	lots, err := f.store.ListLots(f.ctx, domain.LotFilter{ProductID: k.ProductID, BranchID: k.BranchID})
	require.NoError(t, err)

	available, allocated := domain.LotTotals(lots)
	assert.Equal(t, available, st.Available, "available")
	assert.Equal(t, allocated, st.Allocated, "allocated")
	assert.Equal(t, st.Available+st.Allocated, st.OnHand, "on hand")
	assert.Equal(t, st.OnHand, st.LedgerBalance, "ledger balance")
	for _, l := range lots {
		assert.True(t, l.Balanced(), "lot %s balanced", l.BatchNumber)
	}
}

func (f *fixture) movements(t *testing.T, k domain.StockKey, mt domain.MovementType) []*domain.BinCardEntry {
	t.Helper()
	entries, _, err := f.stock.ListBinCard(f.ctx, domain.BinCardFilter{
		ProductID:    k.ProductID,
		BranchID:     k.BranchID,
		MovementType: mt,
	})
	require.NoError(t, err)
	return entries
}

type recordingEvents struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingEvents) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordingEvents) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recordingEvents) GRNReceived(context.Context, *domain.GRN)  { r.record("grn.received") }
func (r *recordingEvents) RGRNCreated(context.Context, *domain.RGRN) { r.record("rgrn.created") }
func (r *recordingEvents) RGRNDeleted(context.Context, *domain.RGRN) { r.record("rgrn.deleted") }
func (r *recordingEvents) TransferChanged(_ context.Context, t *domain.Transfer, _ string) {
	r.record("transfer." + string(t.Status))
}
func (r *recordingEvents) StockAllocated(context.Context, domain.StockKey, string, []domain.Allocation) {
	r.record("stock.allocated")
}
func (r *recordingEvents) DriftRepaired(context.Context, *domain.BranchStock, *domain.BranchStock) {
	r.record("stock.drift_repaired")
}
func (r *recordingEvents) AlertGenerated(context.Context, *domain.Alert) { r.record("alert.generated") }
func (r *recordingEvents) LotsRetired(context.Context, string, []string, string) {
	r.record("lots.retired")
}
