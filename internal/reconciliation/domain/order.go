package domain

import "time"

// OrderStatus is the lifecycle state of an order. The full set is shared with
// the wider commerce domain; the engine only ever drives orders toward
// CANCELED, PARTIAL_RETURNED or RETURNED.
type OrderStatus string

// Order statuses
const (
	OrderPending         OrderStatus = "PENDING"
	OrderConfirmed       OrderStatus = "CONFIRMED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderPartialReturned OrderStatus = "PARTIAL_RETURNED"
	OrderReturned        OrderStatus = "RETURNED"
)

// CanTransitionTo reports whether moving to target respects the forward-only
// precedence PENDING → CONFIRMED → {CANCELED | PARTIAL_RETURNED → RETURNED}.
// CANCELED and RETURNED are terminal; reaching them again is a no-op, never a
// regression.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s == target {
		return false
	}
	switch s {
	case OrderPending:
		return target == OrderConfirmed || target == OrderCanceled ||
			target == OrderPartialReturned || target == OrderReturned
	case OrderConfirmed:
		return target == OrderCanceled || target == OrderPartialReturned ||
			target == OrderReturned
	case OrderPartialReturned:
		return target == OrderReturned
	default:
		return false
	}
}

// Order represents the order aggregate as far as the engine needs it. Its
// status is mutated exclusively through the order projector so the precedence
// invariant holds.
type Order struct {
	ID        int64       `json:"id" gorm:"primaryKey"`
	Status    OrderStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name
func (Order) TableName() string {
	return "orders"
}
