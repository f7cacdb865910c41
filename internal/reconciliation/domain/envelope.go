package domain

// GatewayEnvelope is the wire shape of a gateway notification after the
// upstream verifier has checked its signature. The same shape arrives over the
// HTTP webhook and the Kafka relay topic.
type GatewayEnvelope struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Data EnvelopeData `json:"data"`
}

// EnvelopeData is the union of payload fields across gateway event types;
// each type reads only the fields it needs.
type EnvelopeData struct {
	Reference      string `json:"reference"`
	ChargeID       string `json:"charge_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	AmountRefunded int64  `json:"amount_refunded,omitempty"`
	AmountTotal    int64  `json:"amount_total,omitempty"`
	FullRefund     bool   `json:"full_refund,omitempty"`
	ReasonCode     string `json:"reason_code,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
}

// Gateway event types
const (
	TypePaymentSucceeded = "payment.succeeded"
	TypePaymentFailed    = "payment.failed"
	TypePaymentCanceled  = "payment.canceled"
	TypeChargeRefunded   = "charge.refunded"
	TypeDisputeCreated   = "dispute.created"
	TypeDisputeClosed    = "dispute.closed"
)

// ParseEvent maps a gateway envelope onto the engine's event union. ok is
// false for event types the engine does not reconcile; those are accepted and
// ignored by contract so new gateway event types never break delivery.
func ParseEvent(env GatewayEnvelope) (Event, bool) {
	meta := EventMeta{ID: env.ID, Ref: env.Data.Reference}

	switch env.Type {
	case TypePaymentSucceeded:
		return PaymentSucceeded{EventMeta: meta}, true
	case TypePaymentFailed:
		return PaymentFailed{EventMeta: meta, Reason: env.Data.Reason}, true
	case TypePaymentCanceled:
		return PaymentCanceled{EventMeta: meta}, true
	case TypeChargeRefunded:
		return ChargeRefunded{
			EventMeta:      meta,
			ChargeID:       env.Data.ChargeID,
			AmountRefunded: env.Data.AmountRefunded,
			AmountTotal:    env.Data.AmountTotal,
			FullRefund:     env.Data.FullRefund,
		}, true
	case TypeDisputeCreated:
		return DisputeCreated{
			EventMeta:  meta,
			ChargeID:   env.Data.ChargeID,
			ReasonCode: env.Data.ReasonCode,
			Amount:     env.Data.Amount,
		}, true
	case TypeDisputeClosed:
		return DisputeClosed{
			EventMeta:  meta,
			ChargeID:   env.Data.ChargeID,
			Resolution: DisputeResolution(env.Data.Resolution),
		}, true
	default:
		return nil, false
	}
}
