package query

import (
	"context"
	"fmt"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
)

// ListOrderHistoryQuery represents the query to list an order's audit trail
type ListOrderHistoryQuery struct {
	OrderID int64
}

// ListOrderHistoryHandler handles list order history query
type ListOrderHistoryHandler struct {
	history domain.HistoryStore
}

// NewListOrderHistoryHandler creates a new list order history handler
func NewListOrderHistoryHandler(history domain.HistoryStore) *ListOrderHistoryHandler {
	return &ListOrderHistoryHandler{history: history}
}

// Handle executes the list order history query
func (h *ListOrderHistoryHandler) Handle(ctx context.Context, q ListOrderHistoryQuery) ([]domain.OrderHistoryEntry, error) {
	if q.OrderID <= 0 {
		return nil, fmt.Errorf("order_id is required")
	}
	return h.history.ListByOrder(ctx, q.OrderID)
}
