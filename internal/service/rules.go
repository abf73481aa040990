package service

import (
	"context"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TierBundle pairs the two per-product configuration rows the engine needs
// for one line. Cached as a unit.
type TierBundle struct {
	Tier    models.ProductCommissionTier `json:"tier"`
	Pricing models.ProductPricing        `json:"pricing"`
}

type productStore interface {
	GetCommissionTier(ctx context.Context, productID int64) (*models.ProductCommissionTier, error)
	GetProductPricing(ctx context.Context, productID int64) (*models.ProductPricing, error)
}

type tierCache interface {
	GetTier(ctx context.Context, productID int64, dest interface{}) (bool, error)
	SetTier(ctx context.Context, productID int64, value interface{}, ttl time.Duration) error
}

// RuleResolver resolves per-product commission configuration, with a
// short-TTL cache in front of the store of record. A cache failure falls
// through to the store; the resolver is always correct against Postgres.
type RuleResolver struct {
	store  productStore
	cache  tierCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewRuleResolver creates a new rule resolver. cache may be nil.
func NewRuleResolver(store productStore, cache tierCache, ttl time.Duration) *RuleResolver {
	return &RuleResolver{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Resolve returns the commission tier and pricing for a product, or
// store.ErrNotConfigured when either record is missing.
func (r *RuleResolver) Resolve(ctx context.Context, productID int64) (*models.ProductCommissionTier, *models.ProductPricing, error) {
	if r.cache != nil {
		var bundle TierBundle
		hit, err := r.cache.GetTier(ctx, productID, &bundle)
		if err != nil {
			r.logger.Warn("Tier cache read failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		} else if hit {
			return &bundle.Tier, &bundle.Pricing, nil
		}
	}

	tier, err := r.store.GetCommissionTier(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	pricing, err := r.store.GetProductPricing(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	if r.cache != nil {
		bundle := TierBundle{Tier: *tier, Pricing: *pricing}
		if err := r.cache.SetTier(ctx, productID, &bundle, r.ttl); err != nil {
			r.logger.Warn("Failed to cache tier",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}

	return tier, pricing, nil
}

// LevelAmount returns the payout for one line at one level distance: the
// tier's fixed per-unit amount times quantity. Distances past the three-level
// cap pay nothing.
func LevelAmount(tier *models.ProductCommissionTier, levelDistance int, quantity int) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	switch levelDistance {
	case 1:
		return tier.SalesAmount.Mul(qty)
	case 2:
		return tier.LeaderAmount.Mul(qty)
	case 3:
		return tier.ManagerAmount.Mul(qty)
	default:
		return decimal.Zero
	}
}

// LevelRate returns the informational rate recorded on the ledger entry for
// one level distance.
func LevelRate(tier *models.ProductCommissionTier, levelDistance int) decimal.Decimal {
	switch levelDistance {
	case 1:
		return tier.SalesRate
	case 2:
		return tier.LeaderRate
	case 3:
		return tier.ManagerRate
	default:
		return decimal.Zero
	}
}

// PVPoints computes the point-value weight of a line.
func PVPoints(pricing *models.ProductPricing, quantity int) decimal.Decimal {
	return pricing.PVWeight.Mul(decimal.NewFromInt(int64(quantity)))
}
