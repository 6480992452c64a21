package repository

import (
	"context"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
)

// UpsertProduct creates or updates a cached product
func (s *Store) UpsertProduct(ctx context.Context, p *domain.ProductInfo) error {
	query := `
		INSERT INTO product_cache (
			product_id, product_code, name, reorder_level, minimum_stock, maximum_stock,
			selling_price, cost_price, is_discontinued, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET product_code = $2, name = $3, reorder_level = $4, minimum_stock = $5,
			maximum_stock = $6, selling_price = $7, cost_price = $8, is_discontinued = $9,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := s.q(ctx).QueryRowxContext(ctx, query,
		p.ProductID, p.ProductCode, p.Name, p.ReorderLevel, p.MinimumStock, p.MaximumStock,
		p.SellingPrice, p.CostPrice, p.Discontinued,
	).Scan(&p.UpdatedAt)
	return translate(err, "product", "upsert product")
}

// GetProduct gets a cached product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.ProductInfo, error) {
	var p domain.ProductInfo
	query := `
		SELECT product_id, product_code, name, reorder_level, minimum_stock, maximum_stock,
			selling_price, cost_price, is_discontinued, updated_at
		FROM product_cache WHERE product_id = $1
	`
	if err := s.q(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, translate(err, "product", "get product")
	}
	return &p, nil
}
