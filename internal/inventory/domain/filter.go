package domain

import "time"

// Page bounds a listing. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Window applies the page to n items and returns the slice bounds.
func (p Page) Window(n int) (from, to int) {
	from = p.Offset
	if from > n {
		from = n
	}
	to = n
	if p.Limit > 0 && from+p.Limit < n {
		to = from + p.Limit
	}
	return from, to
}

// LotState narrows a lot listing by its flags.
type LotState string

const (
	LotStateAny     LotState = ""
	LotStateActive  LotState = "active"
	LotStateExpired LotState = "expired"
)

// LotFilter selects lots. Results are in FEFO order.
type LotFilter struct {
	ProductID    string
	BranchID     string
	State        LotState
	InStock      bool
	ExpiryFrom   *time.Time
	ExpiryTo     *time.Time
	ExpiryBefore *time.Time
	Page
}

// Match reports whether l passes the filter.
func (f LotFilter) Match(l *Lot) bool {
	if f.ProductID != "" && l.ProductID != f.ProductID {
		return false
	}
	if f.BranchID != "" && l.BranchID != f.BranchID {
		return false
	}
	switch f.State {
	case LotStateActive:
		if !l.Stocked() {
			return false
		}
	case LotStateExpired:
		if !l.Expired {
			return false
		}
	}
	if f.InStock && l.Available <= 0 {
		return false
	}
	if f.ExpiryFrom != nil || f.ExpiryTo != nil || f.ExpiryBefore != nil {
		if l.ExpiryDate == nil {
			return false
		}
		e := Date(*l.ExpiryDate)
		if f.ExpiryFrom != nil && e.Before(Date(*f.ExpiryFrom)) {
			return false
		}
		if f.ExpiryTo != nil && e.After(Date(*f.ExpiryTo)) {
			return false
		}
		if f.ExpiryBefore != nil && !e.Before(Date(*f.ExpiryBefore)) {
			return false
		}
	}
	return true
}

// StockFilter selects branch stock aggregates.
type StockFilter struct {
	ProductID    string
	BranchID     string
	LowStockOnly bool
	Page
}

// Match reports whether s passes the filter.
func (f StockFilter) Match(s *BranchStock) bool {
	if f.ProductID != "" && s.ProductID != f.ProductID {
		return false
	}
	if f.BranchID != "" && s.BranchID != f.BranchID {
		return false
	}
	return !f.LowStockOnly || s.LowStock()
}

// BinCardFilter selects movement ledger entries.
type BinCardFilter struct {
	ProductID    string
	BranchID     string
	MovementType MovementType
	ReferenceID  string
	From         *time.Time
	To           *time.Time
	Page
}

// Match reports whether e passes the filter.
func (f BinCardFilter) Match(e *BinCardEntry) bool {
	if f.ProductID != "" && e.ProductID != f.ProductID {
		return false
	}
	if f.BranchID != "" && e.BranchID != f.BranchID {
		return false
	}
	if f.MovementType != "" && e.MovementType != f.MovementType {
		return false
	}
	if f.ReferenceID != "" && e.ReferenceID != f.ReferenceID {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// GRNFilter selects goods receipts.
type GRNFilter struct {
	BranchID   string
	SupplierID string
	Status     GRNStatus
	From       *time.Time
	To         *time.Time
	Page
}

// Match reports whether g passes the filter.
func (f GRNFilter) Match(g *GRN) bool {
	if f.BranchID != "" && g.BranchID != f.BranchID {
		return false
	}
	if f.SupplierID != "" && g.SupplierID != f.SupplierID {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.From != nil && Date(g.ReceivedDate).Before(Date(*f.From)) {
		return false
	}
	if f.To != nil && Date(g.ReceivedDate).After(Date(*f.To)) {
		return false
	}
	return true
}

// RGRNFilter selects supplier returns.
type RGRNFilter struct {
	BranchID      string
	SupplierID    string
	OriginalGRNID string
	RefundStatus  RefundStatus
	Page
}

// Match reports whether r passes the filter.
func (f RGRNFilter) Match(r *RGRN) bool {
	if f.BranchID != "" && r.BranchID != f.BranchID {
		return false
	}
	if f.SupplierID != "" && r.SupplierID != f.SupplierID {
		return false
	}
	if f.OriginalGRNID != "" && (r.OriginalGRNID == nil || *r.OriginalGRNID != f.OriginalGRNID) {
		return false
	}
	return f.RefundStatus == "" || r.RefundStatus == f.RefundStatus
}

// TransferFilter selects transfers. BranchID matches either end.
type TransferFilter struct {
	BranchID string
	Status   TransferStatus
	Page
}

// Match reports whether t passes the filter.
func (f TransferFilter) Match(t *Transfer) bool {
	if f.BranchID != "" && t.FromBranchID != f.BranchID && t.ToBranchID != f.BranchID {
		return false
	}
	return f.Status == "" || t.Status == f.Status
}

// AlertFilter selects alerts.
type AlertFilter struct {
	BranchID     string
	ProductID    string
	Type         AlertType
	Level        AlertLevel
	Acknowledged *bool
	Page
}

// Match reports whether a passes the filter.
func (f AlertFilter) Match(a *Alert) bool {
	if f.BranchID != "" && a.BranchID != f.BranchID {
		return false
	}
	if f.ProductID != "" && a.ProductID != f.ProductID {
		return false
	}
	if f.Type != "" && a.AlertType != f.Type {
		return false
	}
	if f.Level != "" && a.Level != f.Level {
		return false
	}
	return f.Acknowledged == nil || a.Acknowledged == *f.Acknowledged
}

// OpenAlertKey identifies an unacknowledged alert for deduplication. LotID
// is nil for low stock alerts.
type OpenAlertKey struct {
	Type      AlertType
	Level     AlertLevel
	ProductID string
	BranchID  string
	LotID     *string
}

// Matches reports whether a is open and has the same identity.
func (k OpenAlertKey) Matches(a *Alert) bool {
	if a.Acknowledged || a.AlertType != k.Type || a.Level != k.Level ||
		a.ProductID != k.ProductID || a.BranchID != k.BranchID {
		return false
	}
	if k.LotID == nil || a.LotID == nil {
		return k.LotID == nil && a.LotID == nil
	}
	return *k.LotID == *a.LotID
}
