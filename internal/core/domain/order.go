package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents an order's lifecycle state.
type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "pendingPayment"
	OrderStatusPendingShipment OrderStatus = "pendingShipment"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Cancellation reason tags.
const (
	CancelReasonAdmin   = "admin"
	CancelReasonTimeout = "timeout" // pickup deadline elapsed unpaid
)

// Credit score penalties applied on cancellation.
const (
	CancelPenalty  = 5
	OverduePenalty = 10
)

// OrderItem snapshots a product line at dispatch time, so later catalog
// changes never alter a placed order.
type OrderItem struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Title      string    `json:"title"`
	Quantity   int       `json:"quantity"`
	CostPrice  int64     `json:"cost_price"`  // per unit, at dispatch
	SalesPrice int64     `json:"sales_price"` // per unit, at dispatch
}

// Order models a dispatched order. Orders are never deleted; terminal
// states are completed and cancelled.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	OrderSN    string      `json:"order_sn"`
	MerchantID uuid.UUID   `json:"merchant_id"`
	Items      []OrderItem `json:"items,omitempty"`

	TotalCost    int64 `json:"total_cost"`
	SellingPrice int64 `json:"selling_price"`
	Earnings     int64 `json:"earnings"` // fixed at dispatch from the VIP rate then in effect

	CompletionDays  int         `json:"completion_days"`
	PickupDeadline  time.Time   `json:"pickup_deadline"`
	Status          OrderStatus `json:"status"`
	ProfitConfirmed bool        `json:"profit_confirmed"`
	CancelReason    string      `json:"cancel_reason,omitempty"`

	PickedUpAt        *time.Time `json:"picked_up_at,omitempty"`
	ProfitConfirmedAt *time.Time `json:"profit_confirmed_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsTerminal returns true once no further transitions are allowed.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// Paid reports whether the merchant's wallet was already debited for
// this order, which decides whether cancellation must compensate.
func (o *Order) Paid() bool {
	return o.Status == OrderStatusPendingShipment || o.Status == OrderStatusShipped
}

// Overdue reports whether the pickup deadline has passed at t.
func (o *Order) Overdue(t time.Time) bool {
	return t.After(o.PickupDeadline)
}
