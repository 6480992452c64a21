package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/lock"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanLowStock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpsertProduct(f.ctx, &domain.ProductInfo{
		ProductID:    "p1",
		Name:         "Cetirizine 10mg",
		ReorderLevel: 10,
		MinimumStock: 2,
		SellingPrice: decimal.NewFromInt(4),
	}))
	require.NoError(t, f.store.UpsertProduct(f.ctx, &domain.ProductInfo{
		ProductID:    "p2",
		Name:         "Loratadine 10mg",
		ReorderLevel: 3,
	}))
	f.receive(t, "branch-a", "p1", "C1", "2025-09-01", 6)
	f.receive(t, "branch-a", "p2", "L1", "2025-09-01", 20)

	alerts, err := f.scanner.ScanLowStock(f.ctx, "branch-a")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertLowStock, alerts[0].AlertType)
	assert.Equal(t, domain.LevelWarning, alerts[0].Level)
	assert.Equal(t, "p1", alerts[0].ProductID)
	assert.Equal(t, "24", alerts[0].BatchValue.String())
	assert.Nil(t, alerts[0].LotID)

	again, err := f.scanner.ScanLowStock(f.ctx, "branch-a")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestScanAll_RunsEveryCheckPerBranch(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "SOON", "2024-12-20", 4)
	old := f.receive(t, "branch-b", "p1", "OLD", "2024-12-02", 4)

	f.clock.Set(f.clock.Now().AddDate(0, 0, 3))
	require.NoError(t, f.scanner.ScanAll(f.ctx))

	assert.True(t, f.lot(t, old.ID).Expired)
	alerts, _, err := f.expiry.ListAlerts(f.ctx, domain.AlertFilter{Type: domain.AlertExpiry})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "branch-a", alerts[0].BranchID)
}

type busyLocker struct{ calls int }

func (b *busyLocker) Do(context.Context, string, time.Duration, func(context.Context) error) error {
	b.calls++
	return lock.ErrNotObtained
}

func TestAlertScheduler_RunsInitialCycle(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "SOON", "2024-12-20", 4)

	s := service.NewAlertScheduler(f.scanner, nil, time.Hour, logger.Nop())
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		alerts, _, err := f.expiry.ListAlerts(f.ctx, domain.AlertFilter{})
		return err == nil && len(alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestAlertScheduler_SkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "branch-a", "p1", "SOON", "2024-12-20", 4)

	locker := &busyLocker{}
	s := service.NewAlertScheduler(f.scanner, locker, time.Hour, logger.Nop())
	s.Start(context.Background())
	s.Stop()

	assert.Equal(t, 1, locker.calls)
	alerts, _, err := f.expiry.ListAlerts(f.ctx, domain.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
