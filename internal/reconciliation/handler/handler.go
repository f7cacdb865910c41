package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/command"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/query"
	"github.com/tair/payment-reconciliation/pkg/logger"
)

var (
	eventCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_events_total",
			Help: "Total number of gateway events received, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	eventLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciler_event_duration_seconds",
			Help:    "Duration of event reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// ReconciliationHandler handles the webhook endpoint and the operator read
// endpoints using CQRS pattern
type ReconciliationHandler struct {
	// Command handlers
	reconcileHandler *command.ReconcileEventHandler

	// Query handlers
	getPaymentHandler  *query.GetPaymentHandler
	listHistoryHandler *query.ListOrderHistoryHandler
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(
	reconcileHandler *command.ReconcileEventHandler,
	getPaymentHandler *query.GetPaymentHandler,
	listHistoryHandler *query.ListOrderHistoryHandler,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconcileHandler:   reconcileHandler,
		getPaymentHandler:  getPaymentHandler,
		listHistoryHandler: listHistoryHandler,
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RegisterRoutes registers all routes to the router
func (h *ReconciliationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/webhooks/gateway", h.HandleWebhook).Methods("POST")
	router.HandleFunc("/api/payments/{reference}", h.GetPayment).Methods("GET")
	router.HandleFunc("/api/orders/{id}/history", h.ListOrderHistory).Methods("GET")
}

// RegisterHealthCheck registers the health check endpoint
func (h *ReconciliationHandler) RegisterHealthCheck(router *mux.Router, db *sql.DB) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, Response{
				Success: false,
				Error:   "database unreachable",
			})
			return
		}
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
	}).Methods("GET")
}

// HandleWebhook handles POST /api/webhooks/gateway. The body is a gateway
// envelope whose signature was already verified upstream. Business no-ops
// (duplicates, unmatched references, stale events, unknown types) answer 200
// so the gateway stops redelivering; only infrastructure failures answer 503.
func (h *ReconciliationHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var env domain.GatewayEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	outcome, err := h.HandleEnvelope(r.Context(), env)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "temporarily unable to process event",
		})
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: string(outcome),
	})
}

// HandleEnvelope runs one gateway envelope through the dispatcher and records
// metrics. It is shared by the HTTP webhook and the Kafka relay consumer; a
// non-nil error always means an infrastructure failure worth redelivering.
func (h *ReconciliationHandler) HandleEnvelope(ctx context.Context, env domain.GatewayEnvelope) (command.Outcome, error) {
	start := time.Now()
	defer func() {
		eventLatency.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
	}()

	ev, ok := domain.ParseEvent(env)
	if !ok {
		eventCounter.WithLabelValues(env.Type, "ignored").Inc()
		logger.Info(ctx).
			Str("event_id", env.ID).
			Str("event_type", env.Type).
			Msg("Unrecognized gateway event type ignored")
		return "ignored", nil
	}

	outcome, err := h.reconcileHandler.Handle(ctx, ev)
	if err != nil {
		eventCounter.WithLabelValues(env.Type, "error").Inc()
		logger.Error(ctx).
			Err(err).
			Str("event_id", env.ID).
			Str("event_type", env.Type).
			Msg("Event reconciliation failed")
		return "", err
	}

	eventCounter.WithLabelValues(env.Type, string(outcome)).Inc()
	return outcome, nil
}

// GetPayment handles GET /api/payments/{reference}
func (h *ReconciliationHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	payment, err := h.getPaymentHandler.Handle(r.Context(), query.GetPaymentQuery{
		Reference: vars["reference"],
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, Response{
				Success: false,
				Error:   "Payment not found",
			})
			return
		}
		respondJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Failed to fetch payment",
		})
		return
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: payment})
}

// ListOrderHistory handles GET /api/orders/{id}/history
func (h *ReconciliationHandler) ListOrderHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	orderID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid order id",
		})
		return
	}

	entries, err := h.listHistoryHandler.Handle(r.Context(), query.ListOrderHistoryQuery{
		OrderID: orderID,
	})
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Failed to fetch order history",
		})
		return
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: entries})
}

func respondJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
