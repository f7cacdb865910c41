package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Store is the transactional persistence port of the engine.
//
// InTransaction must be atomic: everything done through the Store handed to fn
// commits or rolls back as one unit, including on context cancellation.
// Inside a transaction PaymentByReference locks the payment row for the
// transaction's duration, which serializes concurrent deliveries for the same
// gateway reference while leaving unrelated references independent.
type Store interface {
	InTransaction(ctx context.Context, fn func(tx Store) error) error
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
	PaymentByReference(ctx context.Context, reference string) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error
	OrdersByIDs(ctx context.Context, ids []int64) ([]Order, error)
	SaveOrder(ctx context.Context, o *Order) error
}

// HistoryStore persists the audit trail. Append is invoked best-effort after
// the reconciliation transaction commits; a failed append is logged and the
// committed transition stands.
type HistoryStore interface {
	Append(ctx context.Context, entry *OrderHistoryEntry) error
	ListByOrder(ctx context.Context, orderID int64) ([]OrderHistoryEntry, error)
}

// Notifier publishes the fire-and-forget payment-processed notification.
type Notifier interface {
	PaymentProcessed(ctx context.Context, reference string, orderIDs []int64) error
}

// Deduper is a best-effort duplicate filter in front of the durable ledger.
// Mark is called only after the ledger row commits, so a crash mid-transaction
// can never make a redelivered event look handled.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
