package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/command"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/query"
)

type memStore struct {
	payments map[string]*domain.Payment
	orders   map[int64]*domain.Order
	ledger   map[string]bool
	txErr    error
}

func newMemStore() *memStore {
	return &memStore{
		payments: make(map[string]*domain.Payment),
		orders:   make(map[int64]*domain.Order),
		ledger:   make(map[string]bool),
	}
}

func (s *memStore) InTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s)
}

func (s *memStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.ledger[eventID], nil
}

func (s *memStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	s.ledger[eventID] = true
	return nil
}

func (s *memStore) PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	p, ok := s.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) SavePayment(ctx context.Context, p *domain.Payment) error {
	s.payments[p.GatewayReference] = p
	return nil
}

func (s *memStore) OrdersByIDs(ctx context.Context, ids []int64) ([]domain.Order, error) {
	var orders []domain.Order
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (s *memStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	saved := *o
	s.orders[o.ID] = &saved
	return nil
}

type memHistory struct {
	entries []*domain.OrderHistoryEntry
}

func (h *memHistory) Append(ctx context.Context, entry *domain.OrderHistoryEntry) error {
	h.entries = append(h.entries, entry)
	return nil
}

func (h *memHistory) ListByOrder(ctx context.Context, orderID int64) ([]domain.OrderHistoryEntry, error) {
	var entries []domain.OrderHistoryEntry
	for _, e := range h.entries {
		if e.OrderID == orderID {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func newTestRouter(store *memStore, history *memHistory) *mux.Router {
	h := NewReconciliationHandler(
		command.NewReconcileEventHandler(store, history, nil, nil),
		query.NewGetPaymentHandler(store),
		query.NewListOrderHistoryHandler(history),
	)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func postWebhook(t *testing.T, router *mux.Router, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_AppliesEvent(t *testing.T) {
	store := newMemStore()
	store.payments["pi_A"] = &domain.Payment{
		ID:               1,
		GatewayReference: "pi_A",
		Amount:           10000,
		Status:           domain.StatusPending,
		OrderIDs:         []int64{1},
	}
	store.orders[1] = &domain.Order{ID: 1, Status: domain.OrderConfirmed}
	router := newTestRouter(store, &memHistory{})

	rec := postWebhook(t, router, domain.GatewayEnvelope{
		ID:   "evt_1",
		Type: domain.TypePaymentSucceeded,
		Data: domain.EnvelopeData{Reference: "pi_A"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "applied", resp.Message)
	assert.Equal(t, domain.StatusCompleted, store.payments["pi_A"].Status)
}

func TestHandleWebhook_UnknownTypeAcknowledged(t *testing.T) {
	router := newTestRouter(newMemStore(), &memHistory{})

	rec := postWebhook(t, router, domain.GatewayEnvelope{ID: "evt_1", Type: "payout.created"})

	require.Equal(t, http.StatusOK, rec.Code, "unknown types must not trigger redelivery")
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp.Message)
}

func TestHandleWebhook_DuplicateAcknowledged(t *testing.T) {
	store := newMemStore()
	store.ledger["evt_1"] = true
	router := newTestRouter(store, &memHistory{})

	rec := postWebhook(t, router, domain.GatewayEnvelope{
		ID:   "evt_1",
		Type: domain.TypePaymentSucceeded,
		Data: domain.EnvelopeData{Reference: "pi_A"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Message)
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	router := newTestRouter(newMemStore(), &memHistory{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhook_InfrastructureFailureRetryable(t *testing.T) {
	store := newMemStore()
	store.txErr = errors.New("database unreachable")
	router := newTestRouter(store, &memHistory{})

	rec := postWebhook(t, router, domain.GatewayEnvelope{
		ID:   "evt_1",
		Type: domain.TypePaymentSucceeded,
		Data: domain.EnvelopeData{Reference: "pi_A"},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "the gateway must redeliver on infrastructure failures")
}

func TestGetPayment(t *testing.T) {
	store := newMemStore()
	store.payments["pi_A"] = &domain.Payment{
		ID:               1,
		GatewayReference: "pi_A",
		Amount:           10000,
		Status:           domain.StatusCompleted,
	}
	router := newTestRouter(store, &memHistory{})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/pi_A", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	req = httptest.NewRequest(http.MethodGet, "/api/payments/pi_missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrderHistory(t *testing.T) {
	history := &memHistory{entries: []*domain.OrderHistoryEntry{
		{ID: 1, OrderID: 7, Action: domain.ActionCancelOrder, Description: "Payment failed: card_declined"},
		{ID: 2, OrderID: 8, Action: domain.ActionRefund, Description: "Full refund of 100.00 processed."},
	}}
	router := newTestRouter(newMemStore(), history)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/7/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                       `json:"success"`
		Data    []domain.OrderHistoryEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, domain.ActionCancelOrder, resp.Data[0].Action)

	req = httptest.NewRequest(http.MethodGet, "/api/orders/not-a-number/history", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
