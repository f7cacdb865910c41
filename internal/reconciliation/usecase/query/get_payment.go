package query

import (
	"context"
	"fmt"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
)

// GetPaymentQuery represents the query to fetch a payment by its gateway reference
type GetPaymentQuery struct {
	Reference string
}

// GetPaymentHandler handles get payment query
type GetPaymentHandler struct {
	store domain.Store
}

// NewGetPaymentHandler creates a new get payment handler
func NewGetPaymentHandler(store domain.Store) *GetPaymentHandler {
	return &GetPaymentHandler{store: store}
}

// Handle executes the get payment query
func (h *GetPaymentHandler) Handle(ctx context.Context, q GetPaymentQuery) (*domain.Payment, error) {
	if q.Reference == "" {
		return nil, fmt.Errorf("reference is required")
	}
	return h.store.PaymentByReference(ctx, q.Reference)
}
