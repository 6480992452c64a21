package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// Services are the inventory services the HTTP layer fronts.
type Services struct {
	Stock    *service.StockService
	GRN      *service.GRNService
	RGRN     *service.RGRNService
	Transfer *service.TransferService
	Expiry   *service.ExpiryService
	Scanner  *service.AlertScanner
}

// Set holds one handler per resource
type Set struct {
	Stock    *StockHandler
	GRN      *GRNHandler
	RGRN     *RGRNHandler
	Transfer *TransferHandler
	Expiry   *ExpiryHandler
}

// NewSet creates every inventory handler. thresholdDays is the default
// expiry scan window.
func NewSet(svc Services, thresholdDays int, log *logger.Logger) *Set {
	return &Set{
		Stock:    NewStockHandler(svc.Stock, log),
		GRN:      NewGRNHandler(svc.GRN, log),
		RGRN:     NewRGRNHandler(svc.RGRN, log),
		Transfer: NewTransferHandler(svc.Transfer, log),
		Expiry:   NewExpiryHandler(svc.Expiry, svc.Scanner, thresholdDays, log),
	}
}

// Routes registers the inventory API on r
func (s *Set) Routes(r chi.Router) {
	// Stock aggregates
	r.Route("/stock", func(r chi.Router) {
		r.Get("/", s.Stock.List)
		r.Post("/allocate", s.Stock.Allocate)
		r.Post("/{branchID}/rebuild", s.Stock.RebuildBranch)
		r.Get("/{branchID}/{productID}", s.Stock.Get)
		r.Get("/{branchID}/{productID}/availability", s.Stock.Availability)
		r.Post("/{branchID}/{productID}/rebuild", s.Stock.Rebuild)
	})

	// Lots
	r.Route("/lots", func(r chi.Router) {
		r.Get("/", s.Stock.ListLots)
		r.Get("/expired", s.Expiry.ListExpired)
		r.Get("/{id}", s.Stock.GetLot)
		r.Post("/{id}/return", s.Stock.ReturnToLot)
		r.Post("/{id}/adjust", s.Stock.AdjustLot)
		r.Post("/{id}/deactivate", s.Stock.DeactivateLot)
		r.Post("/{id}/expire", s.Expiry.MarkLotExpired)
	})

	r.Get("/bin-card", s.Stock.BinCard)

	// Goods receipts
	r.Route("/grns", func(r chi.Router) {
		r.Get("/", s.GRN.List)
		r.Post("/", s.GRN.Create)
		r.Get("/number/{number}", s.GRN.GetByNumber)
		r.Get("/{id}", s.GRN.Get)
		r.Put("/{id}", s.GRN.Update)
		r.Post("/{id}/submit", s.GRN.Submit)
		r.Post("/{id}/approve", s.GRN.Approve)
		r.Post("/{id}/reject", s.GRN.Reject)
		r.Post("/{id}/cancel", s.GRN.Cancel)
	})

	// Supplier returns
	r.Route("/rgrns", func(r chi.Router) {
		r.Get("/", s.RGRN.List)
		r.Post("/", s.RGRN.Create)
		r.Get("/{id}", s.RGRN.Get)
		r.Delete("/{id}", s.RGRN.Delete)
		r.Put("/{id}/refund-status", s.RGRN.UpdateRefundStatus)
	})

	// Transfers
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", s.Transfer.List)
		r.Post("/", s.Transfer.Create)
		r.Get("/{id}", s.Transfer.Get)
		r.Post("/{id}/approve", s.Transfer.Approve)
		r.Post("/{id}/dispatch", s.Transfer.Dispatch)
		r.Post("/{id}/receive", s.Transfer.Receive)
		r.Post("/{id}/reject", s.Transfer.Reject)
		r.Post("/{id}/cancel", s.Transfer.Cancel)
	})

	// Expiry
	r.Route("/expiry", func(r chi.Router) {
		r.Get("/scan", s.Expiry.Scan)
		r.Post("/alerts", s.Expiry.GenerateAlerts)
		r.Post("/retire", s.Expiry.RetireExpired)
	})

	// Alerts
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", s.Expiry.ListAlerts)
		r.Post("/scan", s.Expiry.RunScan)
		r.Post("/low-stock", s.Expiry.ScanLowStock)
		r.Get("/{id}", s.Expiry.GetAlert)
		r.Put("/{id}/acknowledge", s.Expiry.Acknowledge)
	})
}
