package command

import (
	"context"
	"fmt"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/pkg/logger"
)

// ProjectOrdersHandler derives order status changes from a payment transition.
// Orders only ever move forward; a target that would regress a canceled or
// returned order is skipped.
type ProjectOrdersHandler struct{}

// NewProjectOrdersHandler creates a new order projector
func NewProjectOrdersHandler() *ProjectOrdersHandler {
	return &ProjectOrdersHandler{}
}

// Handle applies the transition's order target to every linked order that can
// still move forward and returns one audit entry per affected order. Entries
// are returned instead of written so the caller can append them after the
// transaction commits, outside the payment row lock.
func (h *ProjectOrdersHandler) Handle(ctx context.Context, tx domain.Store, p *domain.Payment, t domain.Transition) ([]*domain.OrderHistoryEntry, error) {
	if len(p.OrderIDs) == 0 {
		return nil, nil
	}

	orders, err := tx.OrdersByIDs(ctx, p.OrderIDs)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	entries := make([]*domain.OrderHistoryEntry, 0, len(orders))
	for i := range orders {
		order := &orders[i]

		if t.OrderTarget != "" {
			if !order.Status.CanTransitionTo(t.OrderTarget) {
				logger.Info(ctx).
					Int64("order_id", order.ID).
					Str("from", string(order.Status)).
					Str("to", string(t.OrderTarget)).
					Msg("Order transition skipped, status is already final")
				continue
			}
			order.Status = t.OrderTarget
			if err := tx.SaveOrder(ctx, order); err != nil {
				return nil, fmt.Errorf("save order %d: %w", order.ID, err)
			}
		}

		entries = append(entries, domain.NewHistoryEntry(order.ID, domain.SystemActor(), t.Action, t.Note))
	}
	return entries, nil
}
