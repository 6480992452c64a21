package service

import (
	"context"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

// Store is the persistence the inventory services run on. Lock* methods
// take an exclusive row lock held until the enclosing WithTx returns and
// must be called inside one. Implementations report lock waits that exceed
// their timeout as errors.ConcurrencyConflict and missing rows as
// errors.NotFound.
type Store interface {
	// WithTx runs fn in one transaction. A nested call joins the outer one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// NextSequence returns the next value of a per-prefix, per-year counter.
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)

	StockStore
	LotStore
	BinCardStore
	GRNStore
	RGRNStore
	TransferStore
	AlertStore
	ProductStore
}

// StockStore persists branch stock aggregates.
type StockStore interface {
	// LockStock locks the aggregate for key, creating it from seed when it
	// does not exist yet. seed may be nil.
	LockStock(ctx context.Context, key domain.StockKey, seed *domain.ProductInfo) (*domain.BranchStock, error)
	GetStock(ctx context.Context, key domain.StockKey) (*domain.BranchStock, error)
	SaveStock(ctx context.Context, s *domain.BranchStock) error
	ListStock(ctx context.Context, f domain.StockFilter) ([]*domain.BranchStock, int64, error)
	ListStockBranches(ctx context.Context) ([]string, error)
}

// LotStore persists the lot ledger.
type LotStore interface {
	CreateLot(ctx context.Context, l *domain.Lot) error
	GetLot(ctx context.Context, id string) (*domain.Lot, error)
	LockLot(ctx context.Context, id string) (*domain.Lot, error)
	// LockLots locks every lot of key that still holds available or
	// allocated quantity, in FEFO order. The caller must hold the key's
	// aggregate lock.
	LockLots(ctx context.Context, key domain.StockKey) ([]*domain.Lot, error)
	SaveLot(ctx context.Context, l *domain.Lot) error
	ListLots(ctx context.Context, f domain.LotFilter) ([]*domain.Lot, error)
}

// BinCardStore appends and reads the movement ledger.
type BinCardStore interface {
	AppendBinCard(ctx context.Context, e *domain.BinCardEntry) error
	ListBinCard(ctx context.Context, f domain.BinCardFilter) ([]*domain.BinCardEntry, int64, error)
}

// GRNStore persists goods receipts with their lines.
type GRNStore interface {
	CreateGRN(ctx context.Context, g *domain.GRN) error
	SaveGRN(ctx context.Context, g *domain.GRN) error
	GetGRN(ctx context.Context, id string) (*domain.GRN, error)
	GetGRNByNumber(ctx context.Context, number string) (*domain.GRN, error)
	LockGRN(ctx context.Context, id string) (*domain.GRN, error)
	ListGRNs(ctx context.Context, f domain.GRNFilter) ([]*domain.GRN, int64, error)
}

// RGRNStore persists supplier returns with their lines and consumed lots.
type RGRNStore interface {
	CreateRGRN(ctx context.Context, r *domain.RGRN) error
	SaveRGRN(ctx context.Context, r *domain.RGRN) error
	GetRGRN(ctx context.Context, id string) (*domain.RGRN, error)
	LockRGRN(ctx context.Context, id string) (*domain.RGRN, error)
	DeleteRGRN(ctx context.Context, id string) error
	ListRGRNs(ctx context.Context, f domain.RGRNFilter) ([]*domain.RGRN, int64, error)
}

// TransferStore persists transfers with their items and reserved lots.
type TransferStore interface {
	CreateTransfer(ctx context.Context, t *domain.Transfer) error
	SaveTransfer(ctx context.Context, t *domain.Transfer) error
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	LockTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, f domain.TransferFilter) ([]*domain.Transfer, int64, error)
}

// AlertStore persists expiry and low stock alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *domain.Alert) error
	HasOpenAlert(ctx context.Context, key domain.OpenAlertKey) (bool, error)
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	LockAlert(ctx context.Context, id string) (*domain.Alert, error)
	SaveAlert(ctx context.Context, a *domain.Alert) error
	ListAlerts(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error)
}

// ProductStore caches product directory data.
type ProductStore interface {
	UpsertProduct(ctx context.Context, p *domain.ProductInfo) error
	GetProduct(ctx context.Context, id string) (*domain.ProductInfo, error)
}

// EventPublisher receives committed business facts. A nil publisher is valid.
type EventPublisher interface {
	GRNReceived(ctx context.Context, g *domain.GRN)
	RGRNCreated(ctx context.Context, r *domain.RGRN)
	RGRNDeleted(ctx context.Context, r *domain.RGRN)
	TransferChanged(ctx context.Context, t *domain.Transfer, by string)
	StockAllocated(ctx context.Context, key domain.StockKey, referenceID string, allocs []domain.Allocation)
	DriftRepaired(ctx context.Context, before, after *domain.BranchStock)
	AlertGenerated(ctx context.Context, a *domain.Alert)
	LotsRetired(ctx context.Context, branchID string, lotIDs []string, asOf string)
}
