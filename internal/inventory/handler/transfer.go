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

// TransferHandler handles inter-branch transfer endpoints
type TransferHandler struct {
	service *service.TransferService
	logger  *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(svc *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		service: svc,
		logger:  log,
	}
}

// TransferItemRequest requests one product. LotID pins the source lot.
type TransferItemRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	LotID     *string `json:"lot_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	Remarks   *string `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// TransferRequest creates a pending transfer
type TransferRequest struct {
	FromBranchID string                `json:"from_branch_id" validate:"required"`
	ToBranchID   string                `json:"to_branch_id" validate:"required,nefield=FromBranchID"`
	TransferDate string                `json:"transfer_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ExpectedDate string                `json:"expected_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Remarks      *string               `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	Items        []TransferItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ReceivedItem is the quantity of one item that arrived
type ReceivedItem struct {
	ItemID           string `json:"item_id" validate:"required"`
	QuantityReceived int    `json:"quantity_received" validate:"gte=0"`
}

// ReceiveRequest completes a transfer. Items left out arrived complete.
type ReceiveRequest struct {
	Items []ReceivedItem `json:"items" validate:"dive"`
}

// List lists transfers touching a branch on either side
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	p, page, perPage, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && !domain.ValidTransferStatus(status) {
		httputil.Error(w, errors.Validation(map[string]string{"status": "unknown transfer status"}))
		return
	}

	out, total, err := h.service.List(r.Context(), domain.TransferFilter{
		BranchID: q.Get("branch_id"),
		Status:   domain.TransferStatus(status),
		Page:     p,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, out, httputil.NewMeta(page, perPage, total))
}

// Get gets a transfer by ID
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Create records a pending transfer
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t := &domain.Transfer{
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		ExpectedDate: mustDate(req.ExpectedDate),
		Remarks:      req.Remarks,
		Items:        make([]*domain.TransferItem, len(req.Items)),
	}
	if d := mustDate(req.TransferDate); d != nil {
		t.TransferDate = *d
	}
	for i, it := range req.Items {
		t.Items[i] = &domain.TransferItem{
			ProductID:         it.ProductID,
			LotID:             it.LotID,
			QuantityRequested: it.Quantity,
			Remarks:           it.Remarks,
		}
	}

	out, err := h.service.Create(r.Context(), t)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, out)
}

// Approve reserves the requested stock at the source branch
func (h *TransferHandler) Approve(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Dispatch marks an approved transfer as in transit
func (h *TransferHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Receive moves the reserved stock into the destination branch
func (h *TransferHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	var received map[string]int
	if len(req.Items) > 0 {
		received = make(map[string]int, len(req.Items))
		for _, it := range req.Items {
			received[it.ItemID] = it.QuantityReceived
		}
	}

	t, err := h.service.Receive(r.Context(), chi.URLParam(r, "id"), received)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Reject rejects a pending transfer
func (h *TransferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Cancel cancels a transfer, releasing any reservation
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}
