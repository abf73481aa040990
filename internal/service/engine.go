package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type uplineWalker interface {
	WalkUp(ctx context.Context, accountID int64, maxDepth int) ([]int64, error)
}

type tierResolver interface {
	Resolve(ctx context.Context, productID int64) (*models.ProductCommissionTier, *models.ProductPricing, error)
}

type entryWriter interface {
	InsertOrderCommissions(ctx context.Context, linePV []models.OrderLinePV, entries []*models.CommissionEntry) error
}

type createdPublisher interface {
	PublishCommissionCreated(ctx context.Context, event *models.CommissionCreatedEvent) error
}

// Engine turns one finalized order into ledger entries. It does not
// deduplicate: callers must not invoke it twice for the same order (the Kafka
// worker guards with processed_events; the admin endpoint documents it).
type Engine struct {
	relationships uplineWalker
	rules         tierResolver
	ledger        entryWriter
	publisher     createdPublisher
	logger        *zap.Logger
}

// NewEngine creates a new commission engine. publisher may be nil.
func NewEngine(relationships uplineWalker, rules tierResolver, ledger entryWriter, publisher createdPublisher) *Engine {
	return &Engine{
		relationships: relationships,
		rules:         rules,
		ledger:        ledger,
		publisher:     publisher,
		logger:        util.GetLogger(),
	}
}

// OrderLineInput is one line of a finalized order as handed to the engine.
type OrderLineInput struct {
	OrderLineID int64 `json:"order_line_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
}

// ProcessResult summarizes one commission pass.
type ProcessResult struct {
	Entries      []*models.CommissionEntry `json:"entries"`
	SkippedLines int                       `json:"skipped_lines"`
	TotalAmount  decimal.Decimal           `json:"total_amount"`
}

// ProcessOrder computes and persists the full entry set for one finalized
// order. The buyer's upline is resolved once; each line then fans out across
// it. Unconfigured products skip their line with a warning, zero-amount
// levels produce no row, and the write is all-or-nothing per order.
func (e *Engine) ProcessOrder(ctx context.Context, orderID, buyerID int64, lines []OrderLineInput) (*ProcessResult, error) {
	ctx, span := util.StartSpan(ctx, "Engine.ProcessOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ComputeLatency.Observe(time.Since(start).Seconds())
	}()

	ancestors, err := e.relationships.WalkUp(ctx, buyerID, models.MaxCommissionLevels)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("upline_walk").Inc()
		return nil, fmt.Errorf("failed to resolve upline for buyer %d: %w", buyerID, err)
	}

	result := &ProcessResult{TotalAmount: decimal.Zero}

	// An empty upline means no commissions are owed, but PV is still
	// recorded per line below.
	if len(ancestors) == 0 {
		e.logger.Info("Buyer has no upline, no commissions owed",
			zap.Int64("order_id", orderID),
			zap.Int64("buyer_id", buyerID))
	}

	linePV := make([]models.OrderLinePV, 0, len(lines))
	for _, line := range lines {
		tier, pricing, err := e.rules.Resolve(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotConfigured) {
				e.logger.Warn("Product has no commission configuration, skipping line",
					zap.Int64("order_id", orderID),
					zap.Int64("order_line_id", line.OrderLineID),
					zap.Int64("product_id", line.ProductID))
				util.LinesSkippedTotal.Inc()
				result.SkippedLines++
				continue
			}
			util.OrdersFailedTotal.WithLabelValues("rule_resolve").Inc()
			return nil, fmt.Errorf("failed to resolve tier for product %d: %w", line.ProductID, err)
		}

		pv := PVPoints(pricing, line.Quantity)
		linePV = append(linePV, models.OrderLinePV{OrderLineID: line.OrderLineID, PVPoints: pv})

		for idx, recipientID := range ancestors {
			levelDistance := idx + 1
			amount := LevelAmount(tier, levelDistance, line.Quantity)
			if !amount.IsPositive() {
				// Sparse ledger: absence means "not owed", not "owed zero".
				continue
			}

			result.Entries = append(result.Entries, &models.CommissionEntry{
				OrderID:            orderID,
				OrderLineID:        line.OrderLineID,
				ProductID:          line.ProductID,
				PayerAccountID:     buyerID,
				RecipientAccountID: recipientID,
				Amount:             amount,
				Rate:               LevelRate(tier, levelDistance),
				LevelDistance:      levelDistance,
				RecipientRole:      models.RoleForLevel(levelDistance),
				PVPoints:           pv,
				Status:             models.EntryStatusPending,
			})
			result.TotalAmount = result.TotalAmount.Add(amount)
		}
	}

	if err := e.ledger.InsertOrderCommissions(ctx, linePV, result.Entries); err != nil {
		util.OrdersFailedTotal.WithLabelValues("persist").Inc()
		return nil, fmt.Errorf("failed to persist commissions for order %d: %w", orderID, err)
	}

	util.OrdersProcessedTotal.Inc()
	util.EntriesCreatedTotal.Add(float64(len(result.Entries)))

	e.logger.Info("Commission pass completed",
		zap.Int64("order_id", orderID),
		zap.Int64("buyer_id", buyerID),
		zap.Int("entries", len(result.Entries)),
		zap.Int("skipped_lines", result.SkippedLines),
		zap.String("total_amount", result.TotalAmount.String()))

	if e.publisher != nil {
		event := &models.CommissionCreatedEvent{
			OrderID:      orderID,
			BuyerID:      buyerID,
			EntryCount:   len(result.Entries),
			TotalAmount:  result.TotalAmount.String(),
			SkippedLines: result.SkippedLines,
		}
		if err := e.publisher.PublishCommissionCreated(ctx, event); err != nil {
			e.logger.Error("Failed to publish CommissionCreated event", zap.Error(err))
		}
	}

	return result, nil
}
