package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/pkg/logger"
)

// Outcome classifies a reconciliation result so callers can meter it. Every
// outcome answers the gateway with success; only infrastructure failures are
// returned as errors, which the webhook controller maps to a retryable status.
type Outcome string

// Outcomes
const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeUnmatched Outcome = "unmatched"
)

var referenceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reconciler_reference_fallback_total",
	Help: "Number of payments resolved through the charge-id fallback lookup",
})

// ReconcileEventHandler is the engine's single entry point: it routes one
// gateway event through the idempotency guard, the payment status machine and
// the order projector inside one transaction, then appends the audit trail and
// fires the outbound notification best-effort.
type ReconcileEventHandler struct {
	store     domain.Store
	history   domain.HistoryStore
	notifier  domain.Notifier
	dedupe    domain.Deduper
	projector *ProjectOrdersHandler
}

// NewReconcileEventHandler creates a new reconcile event handler. notifier and
// dedupe may be nil when Kafka or Redis are not configured.
func NewReconcileEventHandler(
	store domain.Store,
	history domain.HistoryStore,
	notifier domain.Notifier,
	dedupe domain.Deduper,
) *ReconcileEventHandler {
	return &ReconcileEventHandler{
		store:     store,
		history:   history,
		notifier:  notifier,
		dedupe:    dedupe,
		projector: NewProjectOrdersHandler(),
	}
}

// Handle executes the reconciliation for one delivered event.
func (h *ReconcileEventHandler) Handle(ctx context.Context, ev domain.Event) (Outcome, error) {
	if ev.EventID() == "" {
		return "", fmt.Errorf("event id is required")
	}
	if ev.Reference() == "" && domain.FallbackReference(ev) == "" {
		return "", fmt.Errorf("event reference is required")
	}

	// Fast path. A degraded cache never blocks processing; the ledger check
	// inside the transaction is authoritative.
	if h.dedupe != nil {
		seen, err := h.dedupe.Seen(ctx, ev.EventID())
		if err != nil {
			logger.Warn(ctx).
				Err(err).
				Str("event_id", ev.EventID()).
				Msg("Dedupe cache unavailable, relying on durable ledger")
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	var (
		outcome Outcome
		trans   domain.Transition
		payment *domain.Payment
		entries []*domain.OrderHistoryEntry
	)

	err := h.store.InTransaction(ctx, func(tx domain.Store) error {
		processed, err := tx.EventProcessed(ctx, ev.EventID())
		if err != nil {
			return fmt.Errorf("idempotency ledger check: %w", err)
		}
		if processed {
			outcome = OutcomeDuplicate
			return nil
		}

		p, err := h.resolvePayment(ctx, tx, ev)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				outcome = OutcomeUnmatched
				logger.Info(ctx).
					Str("event_id", ev.EventID()).
					Str("event_kind", ev.Kind()).
					Str("reference", ev.Reference()).
					Msg("Event matches no payment, nothing to reconcile")
				return tx.MarkEventProcessed(ctx, ev.EventID())
			}
			return fmt.Errorf("resolve payment: %w", err)
		}

		t, ok := p.Decide(ev)
		if !ok {
			outcome = OutcomeStale
			logger.Info(ctx).
				Str("event_id", ev.EventID()).
				Str("event_kind", ev.Kind()).
				Str("reference", p.GatewayReference).
				Str("payment_status", string(p.Status)).
				Msg("Stale or out-of-order event discarded")
			return tx.MarkEventProcessed(ctx, ev.EventID())
		}

		p.Apply(t)
		if err := tx.SavePayment(ctx, p); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		entries, err = h.projector.Handle(ctx, tx, p, t)
		if err != nil {
			return err
		}

		if err := tx.MarkEventProcessed(ctx, ev.EventID()); err != nil {
			return fmt.Errorf("idempotency ledger mark: %w", err)
		}

		outcome = OutcomeApplied
		trans = t
		payment = p
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome != OutcomeDuplicate && h.dedupe != nil {
		if err := h.dedupe.Mark(ctx, ev.EventID()); err != nil {
			logger.Warn(ctx).
				Err(err).
				Str("event_id", ev.EventID()).
				Msg("Failed to mark event in dedupe cache")
		}
	}

	if outcome != OutcomeApplied {
		return outcome, nil
	}

	logger.Info(ctx).
		Str("event_id", ev.EventID()).
		Str("event_kind", ev.Kind()).
		Str("reference", payment.GatewayReference).
		Str("from", string(trans.From)).
		Str("to", string(trans.To)).
		Int64("refunded_amount", payment.RefundedAmount).
		Msg("Payment transition applied")

	// Best-effort audit trail: the committed transition stands even when an
	// append fails. Known durability gap, see DESIGN.md.
	for _, entry := range entries {
		if err := h.history.Append(ctx, entry); err != nil {
			logger.Error(ctx).
				Err(err).
				Int64("order_id", entry.OrderID).
				Str("event_id", ev.EventID()).
				Msg("Failed to append order history entry")
		}
	}

	if trans.Notify && h.notifier != nil {
		if err := h.notifier.PaymentProcessed(ctx, payment.GatewayReference, payment.OrderIDs); err != nil {
			logger.Error(ctx).
				Err(err).
				Str("reference", payment.GatewayReference).
				Msg("Failed to publish payment processed notification")
		}
	}

	return OutcomeApplied, nil
}

// resolvePayment maps an event to the local payment. The gateway reference is
// the single correlation key decided at payment creation; events that arrive
// keyed by a raw charge id are resolved through a second lookup, logged and
// counted as a degradation so operators can spot payment rows that were
// created without an intent reference.
func (h *ReconcileEventHandler) resolvePayment(ctx context.Context, tx domain.Store, ev domain.Event) (*domain.Payment, error) {
	if ev.Reference() != "" {
		p, err := tx.PaymentByReference(ctx, ev.Reference())
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return p, err
		}
	}

	fallback := domain.FallbackReference(ev)
	if fallback == "" || fallback == ev.Reference() {
		return nil, domain.ErrNotFound
	}

	p, err := tx.PaymentByReference(ctx, fallback)
	if err != nil {
		return nil, err
	}

	referenceFallbacks.Inc()
	logger.Warn(ctx).
		Str("event_id", ev.EventID()).
		Str("reference", ev.Reference()).
		Str("charge_id", fallback).
		Msg("Payment resolved via charge-id fallback lookup")
	return p, nil
}
