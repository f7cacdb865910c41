package repository

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
)

var tracer = otel.Tracer("reconciliation-store")

// TracingStore wraps a domain.Store with tracing
type TracingStore struct {
	inner domain.Store
}

// NewTracingStore creates a new store with tracing
func NewTracingStore(inner domain.Store) *TracingStore {
	return &TracingStore{inner: inner}
}

func (s *TracingStore) InTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	ctx, span := tracer.Start(ctx, "store.InTransaction")
	defer span.End()

	err := s.inner.InTransaction(ctx, func(tx domain.Store) error {
		return fn(&TracingStore{inner: tx})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "store.EventProcessed",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	seen, err := s.inner.EventProcessed(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("event.processed", seen))
	return seen, nil
}

func (s *TracingStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	ctx, span := tracer.Start(ctx, "store.MarkEventProcessed",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	err := s.inner.MarkEventProcessed(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "store.PaymentByReference",
		trace.WithAttributes(attribute.String("payment.reference", reference)),
	)
	defer span.End()

	payment, err := s.inner.PaymentByReference(ctx, reference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.status", string(payment.Status)))
	return payment, nil
}

func (s *TracingStore) SavePayment(ctx context.Context, p *domain.Payment) error {
	ctx, span := tracer.Start(ctx, "store.SavePayment",
		trace.WithAttributes(
			attribute.String("payment.reference", p.GatewayReference),
			attribute.String("payment.status", string(p.Status)),
		),
	)
	defer span.End()

	err := s.inner.SavePayment(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) OrdersByIDs(ctx context.Context, ids []int64) ([]domain.Order, error) {
	ctx, span := tracer.Start(ctx, "store.OrdersByIDs",
		trace.WithAttributes(attribute.Int("order.count", len(ids))),
	)
	defer span.End()

	orders, err := s.inner.OrdersByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return orders, nil
}

func (s *TracingStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	ctx, span := tracer.Start(ctx, "store.SaveOrder",
		trace.WithAttributes(
			attribute.Int64("order.id", o.ID),
			attribute.String("order.status", string(o.Status)),
		),
	)
	defer span.End()

	err := s.inner.SaveOrder(ctx, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
