package memstore

import "github.com/medlan/medlan-backend/internal/inventory/domain"

func cloneGRN(g *domain.GRN) *domain.GRN {
	c := *g
	c.Lines = make([]*domain.GRNLine, len(g.Lines))
	for i, l := range g.Lines {
		lc := *l
		c.Lines[i] = &lc
	}
	return &c
}

func cloneRGRN(r *domain.RGRN) *domain.RGRN {
	c := *r
	c.Lines = make([]*domain.RGRNLine, len(r.Lines))
	for i, l := range r.Lines {
		lc := *l
		lc.Allocations = append([]domain.Allocation(nil), l.Allocations...)
		c.Lines[i] = &lc
	}
	return &c
}

func cloneTransfer(t *domain.Transfer) *domain.Transfer {
	c := *t
	c.Items = make([]*domain.TransferItem, len(t.Items))
	for i, it := range t.Items {
		ic := *it
		ic.Allocations = append([]domain.Allocation(nil), it.Allocations...)
		c.Items[i] = &ic
	}
	return &c
}

func cloneAlert(a *domain.Alert) *domain.Alert {
	c := *a
	return &c
}
