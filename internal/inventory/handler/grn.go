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

// GRNHandler handles goods receipt endpoints
type GRNHandler struct {
	service *service.GRNService
	logger  *logger.Logger
}

// NewGRNHandler creates a new GRN handler
func NewGRNHandler(svc *service.GRNService, log *logger.Logger) *GRNHandler {
	return &GRNHandler{
		service: svc,
		logger:  log,
	}
}

// GRNLineRequest is one delivered batch
type GRNLineRequest struct {
	ProductID         string          `json:"product_id" validate:"required"`
	BatchNumber       string          `json:"batch_number" validate:"required,max=50"`
	ManufacturingDate string          `json:"manufacturing_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ExpiryDate        string          `json:"expiry_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Quantity          int             `json:"quantity" validate:"gt=0"`
	UnitCost          decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	SellingPrice      decimal.Decimal `json:"selling_price" validate:"gte=0"`
	MRP               decimal.Decimal `json:"mrp" validate:"gte=0"`
	DiscountAmount    decimal.Decimal `json:"discount_amount" validate:"gte=0"`
}

// GRNRequest creates or replaces a receipt that has not been decided yet.
// BranchID is only read on create.
type GRNRequest struct {
	BranchID              string           `json:"branch_id,omitempty"`
	SupplierID            string           `json:"supplier_id" validate:"required"`
	PurchaseOrderID       *string          `json:"purchase_order_id,omitempty" validate:"omitempty,max=100"`
	SupplierInvoiceNumber *string          `json:"supplier_invoice_number,omitempty" validate:"omitempty,max=50"`
	SupplierInvoiceDate   string           `json:"supplier_invoice_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReceivedDate          string           `json:"received_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PaidAmount            decimal.Decimal  `json:"paid_amount" validate:"gte=0"`
	Remarks               *string          `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	Lines                 []GRNLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ReasonRequest carries the reason of a rejection or cancellation
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (req *GRNRequest) toDomain() *domain.GRN {
	g := &domain.GRN{
		BranchID:              req.BranchID,
		SupplierID:            req.SupplierID,
		PurchaseOrderID:       req.PurchaseOrderID,
		SupplierInvoiceNumber: req.SupplierInvoiceNumber,
		SupplierInvoiceDate:   mustDate(req.SupplierInvoiceDate),
		PaidAmount:            req.PaidAmount,
		Remarks:               req.Remarks,
		Lines:                 make([]*domain.GRNLine, len(req.Lines)),
	}
	if d := mustDate(req.ReceivedDate); d != nil {
		g.ReceivedDate = *d
	}
	for i, l := range req.Lines {
		g.Lines[i] = &domain.GRNLine{
			LineNumber:        i + 1,
			ProductID:         l.ProductID,
			BatchNumber:       l.BatchNumber,
			ManufacturingDate: mustDate(l.ManufacturingDate),
			ExpiryDate:        mustDate(l.ExpiryDate),
			Quantity:          l.Quantity,
			UnitCost:          l.UnitCost,
			SellingPrice:      l.SellingPrice,
			MRP:               l.MRP,
			DiscountAmount:    l.DiscountAmount,
		}
	}
	return g
}

// List lists goods receipts
func (h *GRNHandler) List(w http.ResponseWriter, r *http.Request) {
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
	status := q.Get("status")
	if status != "" && !domain.ValidGRNStatus(status) {
		httputil.Error(w, errors.Validation(map[string]string{"status": "unknown grn status"}))
		return
	}

	grns, total, err := h.service.List(r.Context(), domain.GRNFilter{
		BranchID:   q.Get("branch_id"),
		SupplierID: q.Get("supplier_id"),
		Status:     domain.GRNStatus(status),
		From:       from,
		To:         to,
		Page:       p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, grns, httputil.NewMeta(page, perPage, total))
}

// Get gets a goods receipt by ID
func (h *GRNHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// GetByNumber gets a goods receipt by its document number
func (h *GRNHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// Create records a draft goods receipt
func (h *GRNHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req GRNRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.BranchID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"branch_id": "this field is required"}))
		return
	}

	g, err := h.service.Create(r.Context(), req.toDomain())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, g)
}

// Update replaces the header and lines of an undecided receipt
func (h *GRNHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req GRNRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	g, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toDomain())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// Submit sends a draft for approval
func (h *GRNHandler) Submit(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// Approve receives the stock: one lot per line
func (h *GRNHandler) Approve(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// Reject rejects a receipt with a reason
func (h *GRNHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	g, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}

// Cancel cancels an undecided receipt
func (h *GRNHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, g)
}
