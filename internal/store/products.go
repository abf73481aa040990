package store

import (
	"context"
	"database/sql"
	"errors"

	"commission-service/internal/models"
)

// ErrNotConfigured is returned when a product has no commission tier or no
// pricing record. Callers skip commission generation for that line.
var ErrNotConfigured = errors.New("product has no commission configuration")

// GetCommissionTier retrieves the per-product commission tier.
func (s *Store) GetCommissionTier(ctx context.Context, productID int64) (*models.ProductCommissionTier, error) {
	var tier models.ProductCommissionTier
	err := s.db.GetContext(ctx, &tier,
		"SELECT * FROM product_commission_tiers WHERE product_id = $1", productID)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetProductPricing retrieves the per-product PV weight.
func (s *Store) GetProductPricing(ctx context.Context, productID int64) (*models.ProductPricing, error) {
	var pricing models.ProductPricing
	err := s.db.GetContext(ctx, &pricing,
		"SELECT * FROM product_pricing WHERE product_id = $1", productID)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return &pricing, nil
}
