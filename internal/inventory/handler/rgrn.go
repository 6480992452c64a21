package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/httputil"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// RGRNHandler handles return-to-supplier endpoints
type RGRNHandler struct {
	service *service.RGRNService
	logger  *logger.Logger
}

// NewRGRNHandler creates a new RGRN handler
func NewRGRNHandler(svc *service.RGRNService, log *logger.Logger) *RGRNHandler {
	return &RGRNHandler{
		service: svc,
		logger:  log,
	}
}

// RGRNLineRequest is one returned product. Without a lot the quantity is
// taken FEFO; without a unit price it is valued at lot cost.
type RGRNLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	LotID     *string         `json:"lot_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Reason    *string         `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RGRNRequest creates a supplier return
type RGRNRequest struct {
	BranchID      string            `json:"branch_id" validate:"required"`
	SupplierID    string            `json:"supplier_id"`
	OriginalGRNID *string           `json:"original_grn_id,omitempty" validate:"omitempty,uuid"`
	ReturnDate    string            `json:"return_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReturnReason  string            `json:"return_reason" validate:"required,max=500"`
	Remarks       *string           `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	Lines         []RGRNLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// RefundStatusRequest moves a return's refund along its lifecycle
type RefundStatusRequest struct {
	Status         string           `json:"status" validate:"required,oneof=PENDING PARTIALLY_PAID PAID CANCELLED"`
	RefundedAmount *decimal.Decimal `json:"refunded_amount,omitempty"`
}

// List lists supplier returns
func (h *RGRNHandler) List(w http.ResponseWriter, r *http.Request) {
	p, page, perPage, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	status := q.Get("refund_status")
	if status != "" && !domain.ValidRefundStatus(status) {
		httputil.Error(w, errors.Validation(map[string]string{"refund_status": "unknown refund status"}))
		return
	}

	out, total, err := h.service.List(r.Context(), domain.RGRNFilter{
		BranchID:      q.Get("branch_id"),
		SupplierID:    q.Get("supplier_id"),
		OriginalGRNID: q.Get("original_grn_id"),
		RefundStatus:  domain.RefundStatus(status),
		Page:          p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, out, httputil.NewMeta(page, perPage, total))
}

// Get gets a supplier return by ID
func (h *RGRNHandler) Get(w http.ResponseWriter, r *http.Request) {
	rg, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rg)
}

// Create takes the returned quantities out of stock
func (h *RGRNHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RGRNRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rg := &domain.RGRN{
		BranchID:      req.BranchID,
		SupplierID:    req.SupplierID,
		OriginalGRNID: req.OriginalGRNID,
		ReturnReason:  req.ReturnReason,
		Remarks:       req.Remarks,
		Lines:         make([]*domain.RGRNLine, len(req.Lines)),
	}
	if d := mustDate(req.ReturnDate); d != nil {
		rg.ReturnDate = *d
	}
	for i, l := range req.Lines {
		rg.Lines[i] = &domain.RGRNLine{
			ProductID: l.ProductID,
			LotID:     l.LotID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Reason:    l.Reason,
		}
	}

	out, err := h.service.Create(r.Context(), rg)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, out)
}

// Delete removes a supplier return and puts its stock back
func (h *RGRNHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// UpdateRefundStatus records refund progress
func (h *RGRNHandler) UpdateRefundStatus(w http.ResponseWriter, r *http.Request) {
	var req RefundStatusRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.RefundedAmount != nil && req.RefundedAmount.IsNegative() {
		httputil.Error(w, errors.Validation(map[string]string{"refunded_amount": "must be at least 0"}))
		return
	}

	out, err := h.service.UpdateRefundStatus(r.Context(), chi.URLParam(r, "id"), domain.RefundStatus(req.Status), req.RefundedAmount)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, out)
}
