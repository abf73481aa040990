package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxCommissionLevels is the number of upline levels that earn a payout.
// Three levels (Sales, Leader, Manager) is a fixed business rule.
const MaxCommissionLevels = 3

// DefaultNetworkDepth bounds downline tree expansion when the caller does not
// pass an explicit depth.
const DefaultNetworkDepth = 5

// Account represents a member identity. Name and email are opaque to the
// commission engine; only ID and the active flag matter here.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RelationshipEdge is a directed upline edge: child points at its single
// parent. Level is the distance from the forest root at link time and is
// informational only; traversal never trusts it.
type RelationshipEdge struct {
	ChildID   int64     `db:"child_id" json:"child_id"`
	ParentID  int64     `db:"parent_id" json:"parent_id"`
	Level     int       `db:"level" json:"level"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProductCommissionTier holds the per-product payout configuration for the
// three organizational levels. One row per product.
type ProductCommissionTier struct {
	ProductID     int64           `db:"product_id" json:"product_id"`
	SalesAmount   decimal.Decimal `db:"sales_amount" json:"sales_amount"`
	SalesRate     decimal.Decimal `db:"sales_rate" json:"sales_rate"`
	LeaderAmount  decimal.Decimal `db:"leader_amount" json:"leader_amount"`
	LeaderRate    decimal.Decimal `db:"leader_rate" json:"leader_rate"`
	ManagerAmount decimal.Decimal `db:"manager_amount" json:"manager_amount"`
	ManagerRate   decimal.Decimal `db:"manager_rate" json:"manager_rate"`
}

// ProductPricing carries the PV weight used for volume tracking. Price lives
// with the catalog service and is out of scope here.
type ProductPricing struct {
	ProductID int64           `db:"product_id" json:"product_id"`
	PVWeight  decimal.Decimal `db:"pv_weight" json:"pv_weight"`
}

// OrderLine is a line of a finalized order, immutable except for pv_points
// which the engine computes and persists.
type OrderLine struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	PVPoints  decimal.Decimal `db:"pv_points" json:"pv_points"`
}

// OrderLinePV pairs a line with its computed PV points; persisting it is
// idempotent (rewriting the same value is safe).
type OrderLinePV struct {
	OrderLineID int64           `json:"order_line_id"`
	PVPoints    decimal.Decimal `json:"pv_points"`
}

// CommissionEntry is one ledger row: a commission owed to one recipient for
// one order line at one level. Immutable except for status, which only moves
// PENDING -> PAID. Corrections are new entries, never amount mutations.
type CommissionEntry struct {
	ID                 int64           `db:"id" json:"id"`
	OrderID            int64           `db:"order_id" json:"order_id"`
	OrderLineID        int64           `db:"order_line_id" json:"order_line_id"`
	ProductID          int64           `db:"product_id" json:"product_id"`
	PayerAccountID     int64           `db:"payer_account_id" json:"payer_account_id"`
	RecipientAccountID int64           `db:"recipient_account_id" json:"recipient_account_id"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Rate               decimal.Decimal `db:"rate" json:"rate"`
	LevelDistance      int             `db:"level_distance" json:"level_distance"`
	RecipientRole      string          `db:"recipient_role" json:"recipient_role"`
	PVPoints           decimal.Decimal `db:"pv_points" json:"pv_points"`
	Status             string          `db:"status" json:"status"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// Commission entry statuses
const (
	EntryStatusPending = "PENDING"
	EntryStatusPaid    = "PAID"
)

// Recipient roles, derived 1:1 from level distance
const (
	RoleSales   = "SALES"
	RoleLeader  = "LEADER"
	RoleManager = "MANAGER"
)

// RoleForLevel maps a level distance to the recipient role. Levels outside
// the payout cap return an empty string.
func RoleForLevel(levelDistance int) string {
	switch levelDistance {
	case 1:
		return RoleSales
	case 2:
		return RoleLeader
	case 3:
		return RoleManager
	default:
		return ""
	}
}

// AccountStats is the per-recipient aggregate view.
type AccountStats struct {
	AccountID    int64           `db:"-" json:"account_id"`
	TotalEarned  decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalPending decimal.Decimal `db:"total_pending" json:"total_pending"`
	TotalPaid    decimal.Decimal `db:"total_paid" json:"total_paid"`
	ThisMonth    decimal.Decimal `db:"this_month" json:"this_month"`
	LastMonth    decimal.Decimal `db:"last_month" json:"last_month"`
}

// TopEarner is one row of the global top-N ranking.
type TopEarner struct {
	AccountID   int64           `db:"recipient_account_id" json:"account_id"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
}

// GlobalSummary is the ledger-wide aggregate view, optionally windowed by
// entry creation time.
type GlobalSummary struct {
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalPending decimal.Decimal `json:"total_pending"`
	TotalEntries int64           `json:"total_entries"`
	TopEarners   []TopEarner     `json:"top_earners"`
}

// TreeNode is one node of the materialized downline view.
type TreeNode struct {
	AccountID        int64           `json:"account_id"`
	Level            int             `json:"level"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	CommissionEarned decimal.Decimal `json:"commission_earned"`
	IsActive         bool            `json:"is_active"`
	Children         []*TreeNode     `json:"children"`
}

// TreeStats is computed by a second pass over a materialized tree.
type TreeStats struct {
	TotalMembers     int `json:"total_members"`
	MaxObservedDepth int `json:"max_observed_depth"`
}

// ProcessedEvent guards the Kafka worker against redelivery.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
