package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/httputil"
	"github.com/medlan/medlan-backend/pkg/logger"
)

// StockHandler handles branch stock, lot, allocation and bin card endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// AllocateRequest takes stock for one sale line
type AllocateRequest struct {
	ProductID   string  `json:"product_id" validate:"required"`
	BranchID    string  `json:"branch_id" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gt=0"`
	LotID       *string `json:"lot_id,omitempty" validate:"omitempty,uuid"`
	ReferenceID string  `json:"reference_id" validate:"max=100"`
}

// ReturnRequest puts customer-returned quantity back on a lot
type ReturnRequest struct {
	Quantity    int    `json:"quantity" validate:"gt=0"`
	ReferenceID string `json:"reference_id" validate:"max=100"`
}

// AdjustRequest corrects a lot after a physical count. Delta is signed.
type AdjustRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// DeactivateRequest takes a lot out of service
type DeactivateRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func stockKey(r *http.Request) domain.StockKey {
	return domain.StockKey{
		ProductID: chi.URLParam(r, "productID"),
		BranchID:  chi.URLParam(r, "branchID"),
	}
}

// List lists branch stock aggregates
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	p, page, perPage, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	low, err := queryBool(r, "low_stock")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	stock, total, err := h.service.ListStock(r.Context(), domain.StockFilter{
		ProductID:    q.Get("product_id"),
		BranchID:     q.Get("branch_id"),
		LowStockOnly: low != nil && *low,
		Page:         p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, stock, httputil.NewMeta(page, perPage, total))
}

// Get gets the aggregate of one product at one branch
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStock(r.Context(), stockKey(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, st)
}

// Availability reports sellable quantity and the FEFO lot listing
func (h *StockHandler) Availability(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAvailability(r.Context(), stockKey(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, a)
}

// Allocate takes stock for a sale line, FEFO or from a pinned lot
func (h *StockHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Allocate(r.Context(), service.AllocateRequest{
		ProductID:   req.ProductID,
		BranchID:    req.BranchID,
		Quantity:    req.Quantity,
		LotID:       req.LotID,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Rebuild recomputes one aggregate from its lots
func (h *StockHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	key := stockKey(r)
	result, err := h.service.RebuildAggregate(r.Context(), key)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if result.Changed {
		h.logger.Warn().
			Str("product_id", key.ProductID).
			Str("branch_id", key.BranchID).
			Msg("aggregate rebuilt with changes")
	}
	httputil.JSON(w, http.StatusOK, result)
}

// RebuildBranch recomputes every aggregate of a branch and returns the repaired ones
func (h *StockHandler) RebuildBranch(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RebuildBranch(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, results)
}

// ListLots lists lots in FEFO order
func (h *StockHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	p, _, _, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	inStock, err := queryBool(r, "in_stock")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	before, err := queryDate(r, "expiry_before")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	state := domain.LotState(q.Get("state"))
	switch state {
	case domain.LotStateAny, domain.LotStateActive, domain.LotStateExpired:
	default:
		httputil.Error(w, errors.Validation(map[string]string{"state": "must be one of: active expired"}))
		return
	}

	lots, err := h.service.ListLots(r.Context(), domain.LotFilter{
		ProductID:    q.Get("product_id"),
		BranchID:     q.Get("branch_id"),
		State:        state,
		InStock:      inStock != nil && *inStock,
		ExpiryBefore: before,
		Page:         p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// GetLot gets a lot by ID
func (h *StockHandler) GetLot(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetLot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, l)
}

// ReturnToLot books a customer return onto the lot it was sold from
func (h *StockHandler) ReturnToLot(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	l, err := h.service.ReturnToLot(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.ReferenceID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, l)
}

// AdjustLot applies a stock count correction to a lot
func (h *StockHandler) AdjustLot(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	l, err := h.service.AdjustLot(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, l)
}

// DeactivateLot takes a lot out of service
func (h *StockHandler) DeactivateLot(w http.ResponseWriter, r *http.Request) {
	var req DeactivateRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	l, err := h.service.DeactivateLot(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, l)
}

// BinCard lists movement ledger entries, oldest first
func (h *StockHandler) BinCard(w http.ResponseWriter, r *http.Request) {
	p, page, perPage, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	mt := q.Get("movement_type")
	if mt != "" && !domain.ValidMovementType(mt) {
		httputil.Error(w, errors.Validation(map[string]string{"movement_type": "unknown movement type"}))
		return
	}

	entries, total, err := h.service.ListBinCard(r.Context(), domain.BinCardFilter{
		ProductID:    q.Get("product_id"),
		BranchID:     q.Get("branch_id"),
		MovementType: domain.MovementType(mt),
		ReferenceID:  q.Get("reference_id"),
		From:         from,
		To:           endOfDay(to),
		Page:         p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, httputil.NewMeta(page, perPage, total))
}
