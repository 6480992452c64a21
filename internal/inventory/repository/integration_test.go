package repository_test

import (
	"context"
	"flag"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/repository"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/actor"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/medlan/medlan-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()
	if !testing.Short() {
		suite, _ = testutil.NewIntegrationSuite(ctx, repository.Schema())
	}
	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

var inventoryTables = []string{
	"stock_alerts", "transfer_item_allocations", "transfer_items", "transfers",
	"rgrn_line_allocations", "rgrn_lines", "rgrns", "grn_lines", "grns",
	"bin_card", "lots", "branch_stock", "product_cache", "document_sequences",
}

type services struct {
	ctx      context.Context
	store    *repository.Store
	stock    *service.StockService
	grn      *service.GRNService
	rgrn     *service.RGRNService
	transfer *service.TransferService
	expiry   *service.ExpiryService
}

func setup(t *testing.T) *services {
	s := testutil.Require(t, suite)
	s.Truncate(t, inventoryTables...)

	store := repository.New(s.DB)
	engine := service.NewEngine(store, nil, nil, service.Options{
		RetryMaxAttempts:     5,
		RetryInitialInterval: 5 * time.Millisecond,
		RetireWritesOff:      true,
	}, logger.Nop())

	return &services{
		ctx:      actor.WithActor(testutil.DefaultTestContext(t), &actor.Actor{ID: "user-1", Name: "Store Keeper"}),
		store:    store,
		stock:    service.NewStockService(engine),
		grn:      service.NewGRNService(engine),
		rgrn:     service.NewRGRNService(engine),
		transfer: service.NewTransferService(engine),
		expiry:   service.NewExpiryService(engine),
	}
}

func (s *services) receive(t *testing.T, branch, product string, qty int, expiry time.Time) (*domain.GRN, *domain.Lot) {
	t.Helper()
	f := testutil.NewFixtureFactory()
	g, err := s.grn.Create(s.ctx, f.GRN(branch, f.GRNLine(product, qty, expiry)))
	require.NoError(t, err)
	g, err = s.grn.Approve(s.ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, g.Lines[0].LotID)

	l, err := s.store.GetLot(s.ctx, *g.Lines[0].LotID)
	require.NoError(t, err)
	return g, l
}

func (s *services) assertBalanced(t *testing.T, k domain.StockKey) {
	t.Helper()
	st, err := s.store.GetStock(s.ctx, k)
	require.NoError(t, err)
	lots, err := s.store.ListLots(s.ctx, domain.LotFilter{ProductID: k.ProductID, BranchID: k.BranchID})
	require.NoError(t, err)

	available, allocated := domain.LotTotals(lots)
	assert.Equal(t, available, st.Available)
	assert.Equal(t, allocated, st.Allocated)
	assert.Equal(t, st.OnHand, st.LedgerBalance)
	for _, l := range lots {
		assert.True(t, l.Balanced())
	}
}

func TestIntegration_ReceiveAndAllocate(t *testing.T) {
	s := setup(t)
	now := time.Now().UTC()
	k := domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"}

	_, late := s.receive(t, "branch-a", "prod-001", 10, now.AddDate(1, 0, 0))
	_, early := s.receive(t, "branch-a", "prod-001", 5, now.AddDate(0, 6, 0))

	res, err := s.stock.Allocate(s.ctx, service.AllocateRequest{
		ProductID: "prod-001", BranchID: "branch-a", Quantity: 8, ReferenceID: "sale-1",
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, early.ID, res.Allocations[0].LotID, "earliest expiry first")
	assert.Equal(t, 5, res.Allocations[0].Quantity)
	assert.Equal(t, late.ID, res.Allocations[1].LotID)
	assert.Equal(t, 7, res.Stock.Available)

	_, err = s.stock.Allocate(s.ctx, service.AllocateRequest{ProductID: "prod-001", BranchID: "branch-a", Quantity: 8})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	entries, total, err := s.stock.ListBinCard(s.ctx, domain.BinCardFilter{ProductID: "prod-001", BranchID: "branch-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, 7, entries[len(entries)-1].Balance)
	s.assertBalanced(t, k)
}

func TestIntegration_ConcurrentAllocationsDoNotOversell(t *testing.T) {
	s := setup(t)
	s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(1, 0, 0))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.stock.Allocate(s.ctx, service.AllocateRequest{ProductID: "prod-001", BranchID: "branch-a", Quantity: 2})
			if err == nil {
				mu.Lock()
				sold += 2
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, sold)
	s.assertBalanced(t, domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"})
}

func TestIntegration_TransferRoundTrip(t *testing.T) {
	s := setup(t)
	_, src := s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(1, 0, 0))

	f := testutil.NewFixtureFactory()
	tr, err := s.transfer.Create(s.ctx, f.Transfer("branch-a", "branch-b", f.TransferItem("prod-001", 4)))
	require.NoError(t, err)
	tr, err = s.transfer.Approve(s.ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, tr.Items[0].Allocations, 1)

	tr, err = s.transfer.Dispatch(s.ctx, tr.ID)
	require.NoError(t, err)
	tr, err = s.transfer.Receive(s.ctx, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferReceived, tr.Status)

	lots, err := s.store.ListLots(s.ctx, domain.LotFilter{ProductID: "prod-001", BranchID: "branch-b"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, 4, lots[0].Available)
	require.NotNil(t, lots[0].SourceLotID)
	assert.Equal(t, src.ID, *lots[0].SourceLotID)

	s.assertBalanced(t, domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"})
	s.assertBalanced(t, domain.StockKey{ProductID: "prod-001", BranchID: "branch-b"})
}

func TestIntegration_SupplierReturnAndDelete(t *testing.T) {
	s := setup(t)
	g, l := s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(1, 0, 0))

	r, err := s.rgrn.Create(s.ctx, &domain.RGRN{
		BranchID:      "branch-a",
		OriginalGRNID: &g.ID,
		ReturnReason:  "damaged",
		Lines:         []*domain.RGRNLine{{ProductID: "prod-001", LotID: &l.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	got, err := s.rgrn.Get(s.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.Len(t, got.Lines[0].Allocations, 1)
	assert.Equal(t, 3, got.Lines[0].Allocations[0].Quantity)

	require.NoError(t, s.rgrn.Delete(s.ctx, r.ID))
	_, err = s.rgrn.Get(s.ctx, r.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	st, err := s.stock.GetStock(s.ctx, domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"})
	require.NoError(t, err)
	assert.Equal(t, 10, st.OnHand)
}

func TestIntegration_ExpiryAlertsAreDeduplicated(t *testing.T) {
	s := setup(t)
	s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(0, 0, 20))

	first, err := s.expiry.GenerateAlerts(s.ctx, "branch-a", 90)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.expiry.GenerateAlerts(s.ctx, "branch-a", 90)
	require.NoError(t, err)
	assert.Empty(t, second)

	_, err = s.expiry.Acknowledge(s.ctx, first[0].ID)
	require.NoError(t, err)

	third, err := s.expiry.GenerateAlerts(s.ctx, "branch-a", 90)
	require.NoError(t, err)
	assert.Len(t, third, 1, "acknowledged alerts no longer block new ones")
}

func TestIntegration_RebuildRepairsDrift(t *testing.T) {
	s := setup(t)
	k := domain.StockKey{ProductID: "prod-001", BranchID: "branch-a"}
	s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(1, 0, 0))

	_, err := suite.RawDB.ExecContext(s.ctx,
		`UPDATE branch_stock SET quantity_available = 4, quantity_on_hand = 4 WHERE product_id = $1 AND branch_id = $2`,
		k.ProductID, k.BranchID)
	require.NoError(t, err)

	res, err := s.stock.RebuildAggregate(s.ctx, k)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 10, res.After.Available)

	again, err := s.stock.RebuildAggregate(s.ctx, k)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	s.assertBalanced(t, k)
}

func TestIntegration_BinCardIsAppendOnly(t *testing.T) {
	s := setup(t)
	s.receive(t, "branch-a", "prod-001", 10, time.Now().UTC().AddDate(1, 0, 0))

	_, err := suite.RawDB.ExecContext(s.ctx, `UPDATE bin_card SET quantity_in = 0`)
	assert.Error(t, err)
	_, err = suite.RawDB.ExecContext(s.ctx, `DELETE FROM bin_card`)
	assert.Error(t, err)
}
