package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	env := GatewayEnvelope{
		ID:   "evt_1",
		Type: TypeChargeRefunded,
		Data: EnvelopeData{
			Reference:      "pi_123",
			ChargeID:       "ch_456",
			AmountRefunded: 4000,
			AmountTotal:    10000,
		},
	}

	ev, ok := ParseEvent(env)
	require.True(t, ok)

	refunded, ok := ev.(ChargeRefunded)
	require.True(t, ok)
	assert.Equal(t, "evt_1", refunded.EventID())
	assert.Equal(t, "pi_123", refunded.Reference())
	assert.Equal(t, "ch_456", FallbackReference(ev))
	assert.Equal(t, int64(4000), refunded.AmountRefunded)
	assert.False(t, refunded.FullRefund)
}

func TestParseEventFailureCarriesReason(t *testing.T) {
	ev, ok := ParseEvent(GatewayEnvelope{
		ID:   "evt_2",
		Type: TypePaymentFailed,
		Data: EnvelopeData{Reference: "pi_123", Reason: "card_declined"},
	})
	require.True(t, ok)

	failed, ok := ev.(PaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "card_declined", failed.Reason)
	assert.Empty(t, FallbackReference(ev), "payment events have no charge fallback")
}

func TestParseEventUnknownType(t *testing.T) {
	// Forward compatibility: new gateway event kinds are ignored, not errors.
	_, ok := ParseEvent(GatewayEnvelope{ID: "evt_3", Type: "payout.created"})
	assert.False(t, ok)
}
