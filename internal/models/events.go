package models

import "time"

// Event types
const (
	EventTypeOrderFinalized          = "ORDER_FINALIZED"
	EventTypeCommissionCreated       = "COMMISSION_CREATED"
	EventTypeCommissionPaid          = "COMMISSION_PAID"
	EventTypeRelationshipEstablished = "RELATIONSHIP_ESTABLISHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData is one line of a finalized order as carried on the wire.
type OrderLineData struct {
	OrderLineID int64 `json:"order_line_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
}

// OrderFinalizedEvent is published by the order workflow when an order
// completes; consuming it triggers commission computation.
type OrderFinalizedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	BuyerID int64           `json:"buyer_id"`
	Lines   []OrderLineData `json:"lines"`
}

// CommissionCreatedEvent is published after the full entry set for an order
// has been committed.
type CommissionCreatedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	BuyerID      int64  `json:"buyer_id"`
	EntryCount   int    `json:"entry_count"`
	TotalAmount  string `json:"total_amount"`
	SkippedLines int    `json:"skipped_lines"`
}

// CommissionPaidEvent is published after a mark-paid batch commits.
type CommissionPaidEvent struct {
	BaseEvent
	EntryIDs    []int64 `json:"entry_ids"`
	TotalAmount string  `json:"total_amount"`
}

// RelationshipEstablishedEvent is published when an upline edge is created.
type RelationshipEstablishedEvent struct {
	BaseEvent
	ChildID  int64 `json:"child_id"`
	ParentID int64 `json:"parent_id"`
	Level    int   `json:"level"`
}
