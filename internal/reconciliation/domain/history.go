package domain

import "time"

// HistoryAction classifies an audit entry.
type HistoryAction string

// History actions
const (
	ActionCancelOrder  HistoryAction = "CANCEL_ORDER"
	ActionRefund       HistoryAction = "REFUND"
	ActionUpdateStatus HistoryAction = "UPDATE_STATUS"
)

// Actor identifies who caused a history entry. The zero value is the system
// actor; entries written by the engine itself are not attributed to a user.
type Actor struct {
	userID uint
	human  bool
}

// SystemActor attributes an entry to the engine itself.
func SystemActor() Actor { return Actor{} }

// UserActor attributes an entry to a human operator.
func UserActor(id uint) Actor { return Actor{userID: id, human: true} }

// IsSystem reports whether the actor is the engine.
func (a Actor) IsSystem() bool { return !a.human }

// UserID returns the operator id and whether the actor is human.
func (a Actor) UserID() (uint, bool) { return a.userID, a.human }

// OrderHistoryEntry is an append-only audit record of one engine-driven
// transition on one order. Entries are never mutated or deleted.
type OrderHistoryEntry struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	OrderID     int64         `json:"order_id" gorm:"not null;index"`
	ActorID     *uint         `json:"actor_id,omitempty" gorm:"index"` // NULL when the engine acted
	Action      HistoryAction `json:"action" gorm:"type:varchar(32);not null"`
	Description string        `json:"description" gorm:"type:text"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TableName specifies the table name
func (OrderHistoryEntry) TableName() string {
	return "order_history"
}

// NewHistoryEntry builds an audit record for one order.
func NewHistoryEntry(orderID int64, actor Actor, action HistoryAction, description string) *OrderHistoryEntry {
	e := &OrderHistoryEntry{
		OrderID:     orderID,
		Action:      action,
		Description: description,
	}
	if id, ok := actor.UserID(); ok {
		e.ActorID = &id
	}
	return e
}
