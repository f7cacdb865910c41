package domain

import "time"

// Event is the closed set of gateway notifications the engine reconciles.
// Each variant carries the gateway-assigned event id used by the idempotency
// ledger and the reference correlating it to a local Payment.
type Event interface {
	EventID() string
	Reference() string
	Kind() string
}

// EventMeta holds the fields every gateway event carries.
type EventMeta struct {
	ID  string
	Ref string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) Reference() string { return m.Ref }

// PaymentSucceeded reports that the gateway captured the payment.
type PaymentSucceeded struct {
	EventMeta
}

func (PaymentSucceeded) Kind() string { return "payment.succeeded" }

// PaymentFailed reports a failed payment attempt.
type PaymentFailed struct {
	EventMeta
	Reason string
}

func (PaymentFailed) Kind() string { return "payment.failed" }

// PaymentCanceled reports that the payment attempt was canceled at the gateway.
type PaymentCanceled struct {
	EventMeta
}

func (PaymentCanceled) Kind() string { return "payment.canceled" }

// ChargeRefunded reports a refund. AmountRefunded is the gateway's cumulative
// refunded figure in minor units, FullRefund is the gateway's own declaration
// and is never re-derived from the amounts.
type ChargeRefunded struct {
	EventMeta
	ChargeID       string
	AmountRefunded int64
	AmountTotal    int64
	FullRefund     bool
}

func (ChargeRefunded) Kind() string { return "charge.refunded" }

// DisputeCreated reports that the cardholder opened a dispute.
type DisputeCreated struct {
	EventMeta
	ChargeID   string
	ReasonCode string
	Amount     int64
}

func (DisputeCreated) Kind() string { return "dispute.created" }

// DisputeResolution is the gateway's verdict on a closed dispute.
type DisputeResolution string

const (
	ResolutionWon            DisputeResolution = "won"
	ResolutionLost           DisputeResolution = "lost"
	ResolutionChargeRefunded DisputeResolution = "charge_refunded"
	ResolutionNeedsResponse  DisputeResolution = "needs_response"
	ResolutionUnderReview    DisputeResolution = "under_review"
)

// DisputeClosed reports the outcome of a dispute. Only won, lost and
// charge_refunded are final; anything else leaves the payment untouched until
// the gateway sends a later update.
type DisputeClosed struct {
	EventMeta
	ChargeID   string
	Resolution DisputeResolution
}

func (DisputeClosed) Kind() string { return "dispute.closed" }

// chargeCarrier is implemented by events that may arrive keyed by a raw
// charge id instead of the payment-intent reference.
type chargeCarrier interface {
	chargeReference() string
}

func (e ChargeRefunded) chargeReference() string { return e.ChargeID }
func (e DisputeCreated) chargeReference() string { return e.ChargeID }
func (e DisputeClosed) chargeReference() string  { return e.ChargeID }

// FallbackReference returns the secondary correlation key for events that
// carry one, or "" when the primary reference is the only key.
func FallbackReference(ev Event) string {
	if c, ok := ev.(chargeCarrier); ok {
		return c.chargeReference()
	}
	return ""
}

// ProcessedEvent is the idempotency ledger row. The existence of a row for an
// event id means the event has already been applied and redelivery is a no-op.
type ProcessedEvent struct {
	EventID     string    `json:"event_id" gorm:"primaryKey;size:255"`
	ProcessedAt time.Time `json:"processed_at" gorm:"not null"`
}

// TableName specifies the table name
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
