package service

import (
	"context"
	"fmt"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type networkStore interface {
	GetChildren(ctx context.Context, accountID int64) ([]int64, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	GetAccountSalesTotal(ctx context.Context, accountID int64) (decimal.Decimal, error)
	GetRecipientCommissionTotal(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// TreeBuilder materializes read-only downline views for dashboards. It never
// mutates anything and is independent of the order flow.
type TreeBuilder struct {
	store        networkStore
	defaultDepth int
	logger       *zap.Logger
}

// NewTreeBuilder creates a new tree builder. defaultDepth applies when a
// caller does not bound the walk itself.
func NewTreeBuilder(store networkStore, defaultDepth int) *TreeBuilder {
	if defaultDepth <= 0 {
		defaultDepth = models.DefaultNetworkDepth
	}
	return &TreeBuilder{
		store:        store,
		defaultDepth: defaultDepth,
		logger:       util.GetLogger(),
	}
}

type treeFrame struct {
	id     int64
	level  int
	parent *models.TreeNode
}

// BuildTree assembles the downline subtree of rootID, annotated with
// per-node sales and commission totals. Expansion uses an explicit stack with
// a depth counter, so the maxDepth bound holds even against cyclic data left
// behind by a migration bug; no node deeper than maxDepth is ever returned.
func (tb *TreeBuilder) BuildTree(ctx context.Context, rootID int64, maxDepth int) (*models.TreeNode, error) {
	ctx, span := util.StartSpan(ctx, "TreeBuilder.BuildTree")
	defer span.End()

	start := time.Now()
	defer func() {
		util.TreeBuildLatency.Observe(time.Since(start).Seconds())
	}()

	if maxDepth <= 0 {
		maxDepth = tb.defaultDepth
	}

	var root *models.TreeNode
	stack := []treeFrame{{id: rootID, level: 0, parent: nil}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, err := tb.buildNode(ctx, frame.id, frame.level)
		if err != nil {
			return nil, err
		}

		if frame.parent == nil {
			root = node
		} else {
			frame.parent.Children = append(frame.parent.Children, node)
		}

		if frame.level >= maxDepth {
			continue
		}

		children, err := tb.store.GetChildren(ctx, frame.id)
		if err != nil {
			return nil, fmt.Errorf("failed to get children of account %d: %w", frame.id, err)
		}
		// Push in reverse so children materialize in store order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, treeFrame{id: children[i], level: frame.level + 1, parent: node})
		}
	}

	tb.logger.Debug("Downline tree built",
		zap.Int64("root_id", rootID),
		zap.Int("max_depth", maxDepth))

	return root, nil
}

func (tb *TreeBuilder) buildNode(ctx context.Context, accountID int64, level int) (*models.TreeNode, error) {
	account, err := tb.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	totalSales, err := tb.store.GetAccountSalesTotal(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales total for account %d: %w", accountID, err)
	}

	commissionEarned, err := tb.store.GetRecipientCommissionTotal(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission total for account %d: %w", accountID, err)
	}

	return &models.TreeNode{
		AccountID:        accountID,
		Level:            level,
		TotalSales:       totalSales,
		CommissionEarned: commissionEarned,
		IsActive:         account.IsActive,
	}, nil
}

// Stats walks a materialized tree and aggregates member count and observed
// depth. Kept separate from construction so each pass stays side-effect-free.
func Stats(root *models.TreeNode) models.TreeStats {
	if root == nil {
		return models.TreeStats{}
	}

	stats := models.TreeStats{}
	stack := []*models.TreeNode{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stats.TotalMembers++
		if node.Level > stats.MaxObservedDepth {
			stats.MaxObservedDepth = node.Level
		}
		stack = append(stack, node.Children...)
	}
	return stats
}
