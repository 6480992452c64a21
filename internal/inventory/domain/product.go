package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductInfo is the inventory service's cached view of a catalog product.
type ProductInfo struct {
	ProductID    string          `db:"product_id" json:"product_id"`
	ProductCode  string          `db:"product_code" json:"product_code"`
	Name         string          `db:"name" json:"name"`
	ReorderLevel int             `db:"reorder_level" json:"reorder_level"`
	MinimumStock int             `db:"minimum_stock" json:"minimum_stock"`
	MaximumStock int             `db:"maximum_stock" json:"maximum_stock"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"cost_price"`
	Discontinued bool            `db:"is_discontinued" json:"is_discontinued"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
