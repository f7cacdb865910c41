package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/pkg/logger"
)

// EnvelopeHandler processes one relayed gateway envelope. A non-nil error
// means an infrastructure failure; the message is left unmarked so the group
// redelivers it.
type EnvelopeHandler func(ctx context.Context, env domain.GatewayEnvelope) error

// Consumer consumes gateway webhook envelopes relayed over Kafka and feeds
// them through the same dispatcher as the HTTP webhook path. Delivery is
// at-least-once; the dispatcher's idempotency guard absorbs the duplicates.
type Consumer struct {
	consumer sarama.ConsumerGroup
	brokers  []string
	groupID  string
	topics   []string
	handler  EnvelopeHandler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, handler EnvelopeHandler) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	topics := []string{TopicGatewayEvents}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("Kafka consumer initialized")

	return &Consumer{
		consumer: consumer,
		brokers:  brokers,
		groupID:  groupID,
		topics:   topics,
		handler:  handler,
	}, nil
}

// Start starts consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{consumer: c}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info().Msg("Consumer context cancelled, stopping...")
				return
			default:
				if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
					logger.Logger.Error().
						Err(err).
						Msg("Error from consumer")
				}
			}
		}
	}()

	go func() {
		for err := range c.consumer.Errors() {
			logger.Logger.Error().
				Err(err).
				Msg("Consumer error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", c.topics).
		Str("group_id", c.groupID).
		Msg("Kafka consumer started")

	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	if c.consumer != nil {
		return c.consumer.Close()
	}
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handleMessage(session.Context(), message); err != nil {
			// Leave the message unmarked; the group redelivers it and the
			// idempotency guard makes the retry safe.
			continue
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *consumerGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	// Extract trace context from Kafka headers
	carrier := propagation.MapCarrier{}
	for _, header := range message.Headers {
		key := string(header.Key)
		if key == "traceparent" || key == "tracestate" {
			carrier[key] = string(header.Value)
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	tracer := otel.Tracer("kafka-consumer")
	ctx, span := tracer.Start(ctx, "kafka.consume.gateway_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source", message.Topic),
			attribute.String("messaging.source_kind", "topic"),
			attribute.Int("messaging.kafka.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		),
	)
	defer span.End()

	var env domain.GatewayEnvelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		// Malformed relay payloads cannot succeed on retry; drop them.
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to unmarshal envelope")
		logger.Logger.Error().
			Err(err).
			Str("topic", message.Topic).
			Int64("offset", message.Offset).
			Msg("Failed to unmarshal gateway envelope, dropping message")
		return nil
	}

	span.SetAttributes(
		attribute.String("event.id", env.ID),
		attribute.String("event.type", env.Type),
	)

	if err := h.consumer.handler(ctx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle event")
		logger.Logger.Error().
			Err(err).
			Str("event_id", env.ID).
			Str("event_type", env.Type).
			Str("trace_id", span.SpanContext().TraceID().String()).
			Msg("Failed to handle relayed gateway event")
		return err
	}

	span.SetStatus(codes.Ok, "Event handled successfully")
	logger.Logger.Debug().
		Str("event_id", env.ID).
		Str("event_type", env.Type).
		Str("trace_id", span.SpanContext().TraceID().String()).
		Msg("Relayed gateway event handled")
	return nil
}
