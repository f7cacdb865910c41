package domain

import (
	"fmt"
	"time"
)

// PaymentStatus is the canonical lifecycle state of a payment attempt.
type PaymentStatus string

// Payment statuses
const (
	StatusPending   PaymentStatus = "PENDING"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCanceled  PaymentStatus = "CANCELED"
	StatusRefunding PaymentStatus = "REFUNDING"
	StatusRefunded  PaymentStatus = "REFUNDED"
	StatusDisputed  PaymentStatus = "DISPUTED"
)

// IsTerminal reports whether engine-driven transitions out of s are possible
// at all. DISPUTED is not terminal: a closed dispute moves the payment again.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCanceled || s == StatusRefunded
}

// refundable reports whether a charge.refunded event applies to s. PENDING is
// included so that a refund delivered ahead of its success event still lands;
// the late success is then discarded and any delivery order converges on the
// refunded state.
func (s PaymentStatus) refundable() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusRefunding
}

// Payment represents one payment attempt at the gateway. All amounts are in
// minor currency units.
type Payment struct {
	ID               uint          `json:"id" gorm:"primaryKey"`
	GatewayReference string        `json:"gateway_reference" gorm:"not null;uniqueIndex;size:255"`
	Amount           int64         `json:"amount" gorm:"not null"`
	RefundedAmount   int64         `json:"refunded_amount" gorm:"not null;default:0"`
	Currency         string        `json:"currency" gorm:"size:3;default:'USD'"`
	Status           PaymentStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	OrderIDs         []int64       `json:"order_ids" gorm:"serializer:json"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName specifies the table name
func (Payment) TableName() string {
	return "payments"
}

// Transition is the decided effect of one gateway event on a payment.
type Transition struct {
	From           PaymentStatus
	To             PaymentStatus
	RefundedAmount int64         // new cumulative refunded amount
	OrderTarget    OrderStatus   // "" when linked orders keep their status
	Action         HistoryAction // audit action for the history entries
	Note           string        // human-readable cause for the history entries
	Notify         bool          // publish the payment-processed notification after commit
}

// Decide evaluates ev against the current payment state and returns the
// transition to apply. ok is false when the event is stale, out of order, or
// otherwise without effect; such events are discarded rather than erroring
// because the gateway delivers at least once and in no particular order, and
// the machine must converge to the same state for any delivery permutation.
func (p *Payment) Decide(ev Event) (Transition, bool) {
	t := Transition{From: p.Status, RefundedAmount: p.RefundedAmount}

	switch e := ev.(type) {
	case PaymentSucceeded:
		if p.Status != StatusPending {
			return t, false
		}
		t.To = StatusCompleted
		t.Action = ActionUpdateStatus
		t.Note = "Payment confirmed by gateway."
		t.Notify = true
		return t, true

	case PaymentFailed:
		if p.Status != StatusPending && p.Status != StatusCompleted {
			return t, false
		}
		t.To = StatusFailed
		t.OrderTarget = OrderCanceled
		t.Action = ActionCancelOrder
		t.Note = fmt.Sprintf("Payment failed: %s", e.Reason)
		return t, true

	case PaymentCanceled:
		if p.Status != StatusPending && p.Status != StatusCompleted {
			return t, false
		}
		t.To = StatusCanceled
		t.OrderTarget = OrderCanceled
		t.Action = ActionCancelOrder
		t.Note = "Payment canceled by gateway."
		return t, true

	case ChargeRefunded:
		if !p.Status.refundable() {
			return t, false
		}
		if e.FullRefund {
			t.To = StatusRefunded
			t.RefundedAmount = maxInt64(p.RefundedAmount, e.AmountRefunded)
			t.OrderTarget = OrderReturned
			t.Action = ActionRefund
			t.Note = fmt.Sprintf("Full refund of %s processed.", formatAmount(e.AmountTotal))
			return t, true
		}
		if e.AmountRefunded <= 0 || e.AmountRefunded >= e.AmountTotal {
			return t, false
		}
		if p.Status == StatusRefunding && e.AmountRefunded <= p.RefundedAmount {
			// Cumulative figure already accounted for; nothing new to apply.
			return t, false
		}
		t.To = StatusRefunding
		t.RefundedAmount = maxInt64(p.RefundedAmount, e.AmountRefunded)
		t.OrderTarget = OrderPartialReturned
		t.Action = ActionRefund
		t.Note = fmt.Sprintf("Partial refund of %s of %s processed.",
			formatAmount(e.AmountRefunded), formatAmount(e.AmountTotal))
		return t, true

	case DisputeCreated:
		if p.Status.IsTerminal() || p.Status == StatusDisputed {
			return t, false
		}
		t.To = StatusDisputed
		t.Action = ActionUpdateStatus
		t.Note = fmt.Sprintf("Dispute opened. Reason: %s. Amount: %s.",
			e.ReasonCode, formatAmount(e.Amount))
		return t, true

	case DisputeClosed:
		if p.Status != StatusDisputed {
			return t, false
		}
		switch e.Resolution {
		case ResolutionWon:
			t.To = StatusCompleted
			t.Action = ActionUpdateStatus
			t.Note = "Dispute closed in our favor."
			return t, true
		case ResolutionLost, ResolutionChargeRefunded:
			t.To = StatusRefunded
			t.RefundedAmount = maxInt64(p.RefundedAmount, p.Amount)
			t.OrderTarget = OrderReturned
			t.Action = ActionRefund
			t.Note = "Dispute lost. Payment refunded."
			return t, true
		default:
			// needs_response, under_review, warning_* keep the dispute in
			// flight; the gateway sends a later dispute.closed with a verdict.
			return t, false
		}

	default:
		return t, false
	}
}

// Apply mutates the payment per a previously decided transition. The refunded
// amount only ever grows, so replaying a refund never double-subtracts.
func (p *Payment) Apply(t Transition) {
	p.Status = t.To
	if t.RefundedAmount > p.RefundedAmount {
		p.RefundedAmount = t.RefundedAmount
	}
}

// formatAmount renders a minor-unit amount as a decimal string for audit
// text. Presentation only; comparisons always stay in minor units.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
