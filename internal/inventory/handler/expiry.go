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

// ExpiryHandler handles expiry scans, alerts and lot retirement
type ExpiryHandler struct {
	service          *service.ExpiryService
	scanner          *service.AlertScanner
	defaultThreshold int
	logger           *logger.Logger
}

// NewExpiryHandler creates a new expiry handler. threshold is the scan
// window used when a request does not name one.
func NewExpiryHandler(svc *service.ExpiryService, scanner *service.AlertScanner, threshold int, log *logger.Logger) *ExpiryHandler {
	return &ExpiryHandler{
		service:          svc,
		scanner:          scanner,
		defaultThreshold: threshold,
		logger:           log,
	}
}

// ScanRequest names the branch and window of an expiry scan
type ScanRequest struct {
	BranchID      string `json:"branch_id"`
	ThresholdDays *int   `json:"threshold_days,omitempty" validate:"omitempty,gte=0,lte=3650"`
}

// BranchRequest names the branch an operation runs against
type BranchRequest struct {
	BranchID string `json:"branch_id"`
}

func (h *ExpiryHandler) threshold(days *int) int {
	if days == nil {
		return h.defaultThreshold
	}
	return *days
}

// Scan lists lots expiring within threshold_days without creating alerts
func (h *ExpiryHandler) Scan(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "threshold_days", h.defaultThreshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	out, err := h.service.Scan(r.Context(), r.URL.Query().Get("branch_id"), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, out)
}

// GenerateAlerts scans and stores an alert per matched lot
func (h *ExpiryHandler) GenerateAlerts(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	out, err := h.service.GenerateAlerts(r.Context(), req.BranchID, h.threshold(req.ThresholdDays))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if out == nil {
		out = []*domain.Alert{}
	}

	httputil.Created(w, out)
}

// ScanLowStock raises low stock alerts for a branch
func (h *ExpiryHandler) ScanLowStock(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.BranchID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"branch_id": "is required"}))
		return
	}

	out, err := h.scanner.ScanLowStock(r.Context(), req.BranchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if out == nil {
		out = []*domain.Alert{}
	}

	httputil.Created(w, out)
}

// RunScan runs every periodic check now, for one branch or all of them
func (h *ExpiryHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	var err error
	if req.BranchID != "" {
		err = h.scanner.ScanBranch(r.Context(), req.BranchID)
	} else {
		err = h.scanner.ScanAll(r.Context())
	}
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListAlerts lists alerts
func (h *ExpiryHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	p, page, perPage, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	f := domain.AlertFilter{
		BranchID:  q.Get("branch_id"),
		ProductID: q.Get("product_id"),
		Page:      p,
	}

	switch t := domain.AlertType(q.Get("type")); t {
	case "":
	case domain.AlertExpiry, domain.AlertLowStock:
		f.Type = t
	default:
		httputil.Error(w, errors.Validation(map[string]string{"type": "must be one of EXPIRY LOW_STOCK"}))
		return
	}

	if level := q.Get("level"); level != "" {
		if !domain.ValidAlertLevel(level) {
			httputil.Error(w, errors.Validation(map[string]string{"level": "unknown alert level"}))
			return
		}
		f.Level = domain.AlertLevel(level)
	}

	if f.Acknowledged, err = queryBool(r, "acknowledged"); err != nil {
		httputil.Error(w, err)
		return
	}

	out, total, err := h.service.ListAlerts(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, out, httputil.NewMeta(page, perPage, total))
}

// GetAlert gets an alert by ID
func (h *ExpiryHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, a)
}

// Acknowledge acknowledges an alert
func (h *ExpiryHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Acknowledge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, a)
}

// RetireExpired retires every lot past its expiry date
func (h *ExpiryHandler) RetireExpired(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.service.RetireExpired(r.Context(), req.BranchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, res)
}

// MarkLotExpired retires a single lot
func (h *ExpiryHandler) MarkLotExpired(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.MarkLotExpired(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, l)
}

// ListExpired lists a branch's retired lots
func (h *ExpiryHandler) ListExpired(w http.ResponseWriter, r *http.Request) {
	p, _, _, err := pageParams(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	out, err := h.service.ListExpired(r.Context(), r.URL.Query().Get("branch_id"), p)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, out)
}
