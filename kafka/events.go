package kafka

import "time"

// PaymentProcessedEvent notifies downstream consumers (fulfillment triggers
// and the like) that a payment settled.
type PaymentProcessedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	OrderIDs  []int64   `json:"order_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types
const (
	EventTypePaymentProcessed = "payment.processed"
)

// Kafka topics
const (
	TopicPaymentProcessed = "payment-processed"
	TopicGatewayEvents    = "payment-gateway-events"
)
