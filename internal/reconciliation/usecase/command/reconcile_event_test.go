package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
)

// --- In-memory fakes for the engine's ports ---

type fakeStore struct {
	payments  map[string]*domain.Payment // by gateway reference
	orders    map[int64]*domain.Order
	processed map[string]bool

	txCalls      int
	paymentSaves int

	txErr     error
	ledgerErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:  make(map[string]*domain.Payment),
		orders:    make(map[int64]*domain.Order),
		processed: make(map[string]bool),
	}
}

func (s *fakeStore) InTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	s.txCalls++
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s)
}

func (s *fakeStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	if s.ledgerErr != nil {
		return false, s.ledgerErr
	}
	return s.processed[eventID], nil
}

func (s *fakeStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	s.processed[eventID] = true
	return nil
}

func (s *fakeStore) PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	p, ok := s.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) SavePayment(ctx context.Context, p *domain.Payment) error {
	s.paymentSaves++
	s.payments[p.GatewayReference] = p
	return nil
}

func (s *fakeStore) OrdersByIDs(ctx context.Context, ids []int64) ([]domain.Order, error) {
	var orders []domain.Order
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (s *fakeStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	saved := *o
	s.orders[o.ID] = &saved
	return nil
}

type fakeHistory struct {
	entries   []*domain.OrderHistoryEntry
	appendErr error
}

func (h *fakeHistory) Append(ctx context.Context, entry *domain.OrderHistoryEntry) error {
	if h.appendErr != nil {
		return h.appendErr
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *fakeHistory) ListByOrder(ctx context.Context, orderID int64) ([]domain.OrderHistoryEntry, error) {
	var entries []domain.OrderHistoryEntry
	for _, e := range h.entries {
		if e.OrderID == orderID {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

type notification struct {
	reference string
	orderIDs  []int64
}

type fakeNotifier struct {
	published []notification
	err       error
}

func (n *fakeNotifier) PaymentProcessed(ctx context.Context, reference string, orderIDs []int64) error {
	if n.err != nil {
		return n.err
	}
	n.published = append(n.published, notification{reference: reference, orderIDs: orderIDs})
	return nil
}

type fakeDeduper struct {
	seen    map[string]bool
	marked  []string
	seenErr error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if d.seenErr != nil {
		return false, d.seenErr
	}
	return d.seen[eventID], nil
}

func (d *fakeDeduper) Mark(ctx context.Context, eventID string) error {
	d.seen[eventID] = true
	d.marked = append(d.marked, eventID)
	return nil
}

// --- Fixtures ---

type fixture struct {
	store    *fakeStore
	history  *fakeHistory
	notifier *fakeNotifier
	dedupe   *fakeDeduper
	handler  *ReconcileEventHandler
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		history:  &fakeHistory{},
		notifier: &fakeNotifier{},
		dedupe:   newFakeDeduper(),
	}
	f.handler = NewReconcileEventHandler(f.store, f.history, f.notifier, f.dedupe)
	return f
}

func (f *fixture) addPayment(reference string, status domain.PaymentStatus, amount int64, orderIDs ...int64) *domain.Payment {
	p := &domain.Payment{
		ID:               1,
		GatewayReference: reference,
		Amount:           amount,
		Status:           status,
		OrderIDs:         orderIDs,
	}
	f.store.payments[reference] = p
	return p
}

func (f *fixture) addOrder(id int64, status domain.OrderStatus) {
	f.store.orders[id] = &domain.Order{ID: id, Status: status}
}

func succeeded(eventID, ref string) domain.Event {
	return domain.PaymentSucceeded{EventMeta: domain.EventMeta{ID: eventID, Ref: ref}}
}

// --- Tests ---

func TestHandle_HappyPath(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, domain.StatusCompleted, f.store.payments["pi_A"].Status)
	assert.Equal(t, domain.OrderConfirmed, f.store.orders[1].Status, "success must not force an order transition")
	assert.True(t, f.store.processed["evt_1"], "event must be in the ledger")
	assert.Contains(t, f.dedupe.marked, "evt_1")

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, int64(1), f.history.entries[0].OrderID)
	assert.Nil(t, f.history.entries[0].ActorID, "engine transitions are attributed to the system actor")

	require.Len(t, f.notifier.published, 1)
	assert.Equal(t, "pi_A", f.notifier.published[0].reference)
	assert.Equal(t, []int64{1}, f.notifier.published[0].orderIDs)
}

func TestHandle_ReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)

	ev := succeeded("evt_1", "pi_A")
	outcome, err := f.handler.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = f.handler.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, 1, f.store.paymentSaves, "replay must not mutate")
	assert.Len(t, f.history.entries, 1, "replay must not duplicate the audit entry")
	assert.Len(t, f.notifier.published, 1, "replay must not notify twice")
}

func TestHandle_LedgerCatchesReplayWhenCacheCold(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000)

	ev := succeeded("evt_1", "pi_A")
	_, err := f.handler.Handle(context.Background(), ev)
	require.NoError(t, err)

	// Cache lost the key (restart, eviction); the durable ledger still wins.
	f.dedupe.seen = map[string]bool{}
	outcome, err := f.handler.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, f.store.paymentSaves)
}

func TestHandle_DedupeFastPathSkipsStore(t *testing.T) {
	f := newFixture()
	f.dedupe.seen["evt_1"] = true

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 0, f.store.txCalls, "known duplicates must not touch the database")
}

func TestHandle_DedupeCacheDownDegradesToLedger(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000)
	f.dedupe.seenErr = errors.New("connection refused")

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err, "a degraded cache must not reject the event")
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestHandle_UnmatchedReference(t *testing.T) {
	f := newFixture()

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_unknown"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, outcome)

	assert.Equal(t, 0, f.store.paymentSaves)
	assert.Empty(t, f.history.entries)
	assert.Empty(t, f.notifier.published)
	assert.True(t, f.store.processed["evt_1"], "unmatched events are still marked processed")
}

func TestHandle_StaleEventDiscarded(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusRefunded, 10000, 1)
	f.addOrder(1, domain.OrderReturned)

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)

	assert.Equal(t, domain.StatusRefunded, f.store.payments["pi_A"].Status)
	assert.Equal(t, 0, f.store.paymentSaves)
	assert.True(t, f.store.processed["evt_1"])
}

func TestHandle_FailureCancelsOrder(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)

	outcome, err := f.handler.Handle(context.Background(), domain.PaymentFailed{
		EventMeta: domain.EventMeta{ID: "evt_1", Ref: "pi_A"},
		Reason:    "card_declined",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, domain.StatusFailed, f.store.payments["pi_A"].Status)
	assert.Equal(t, domain.OrderCanceled, f.store.orders[1].Status)
	assert.Empty(t, f.notifier.published)

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, domain.ActionCancelOrder, f.history.entries[0].Action)
	assert.Contains(t, f.history.entries[0].Description, "card_declined")
}

func TestHandle_PartialThenFullRefund(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusCompleted, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)

	outcome, err := f.handler.Handle(context.Background(), domain.ChargeRefunded{
		EventMeta:      domain.EventMeta{ID: "evt_1", Ref: "pi_A"},
		AmountRefunded: 4000,
		AmountTotal:    10000,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, domain.StatusRefunding, f.store.payments["pi_A"].Status)
	assert.Equal(t, domain.OrderPartialReturned, f.store.orders[1].Status)

	outcome, err = f.handler.Handle(context.Background(), domain.ChargeRefunded{
		EventMeta:      domain.EventMeta{ID: "evt_2", Ref: "pi_A"},
		AmountRefunded: 10000,
		AmountTotal:    10000,
		FullRefund:     true,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, domain.StatusRefunded, f.store.payments["pi_A"].Status)
	assert.Equal(t, int64(10000), f.store.payments["pi_A"].RefundedAmount)
	assert.Equal(t, domain.OrderReturned, f.store.orders[1].Status)

	require.Len(t, f.history.entries, 2)
	assert.Contains(t, f.history.entries[0].Description, "Partial refund")
	assert.Contains(t, f.history.entries[1].Description, "Full refund")
}

func TestHandle_CanceledOrderNeverRegresses(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusCompleted, 10000, 1)
	f.addOrder(1, domain.OrderCanceled)

	outcome, err := f.handler.Handle(context.Background(), domain.ChargeRefunded{
		EventMeta:      domain.EventMeta{ID: "evt_1", Ref: "pi_A"},
		AmountRefunded: 10000,
		AmountTotal:    10000,
		FullRefund:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, domain.StatusRefunded, f.store.payments["pi_A"].Status, "payment still settles")
	assert.Equal(t, domain.OrderCanceled, f.store.orders[1].Status, "canceled order must not move")
	assert.Empty(t, f.history.entries, "skipped order transitions write no entry")
}

func TestHandle_MultipleOrdersProjected(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1, 2, 3)
	f.addOrder(1, domain.OrderConfirmed)
	f.addOrder(2, domain.OrderPending)
	f.addOrder(3, domain.OrderCanceled)

	outcome, err := f.handler.Handle(context.Background(), domain.PaymentFailed{
		EventMeta: domain.EventMeta{ID: "evt_1", Ref: "pi_A"},
		Reason:    "insufficient_funds",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, domain.OrderCanceled, f.store.orders[1].Status)
	assert.Equal(t, domain.OrderCanceled, f.store.orders[2].Status)
	assert.Equal(t, domain.OrderCanceled, f.store.orders[3].Status)
	assert.Len(t, f.history.entries, 2, "already-canceled order gets no entry")
}

func TestHandle_AuditFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)
	f.history.appendErr = errors.New("history table unavailable")

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err, "best-effort audit must never fail the transition")
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, domain.StatusCompleted, f.store.payments["pi_A"].Status)
}

func TestHandle_NotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)
	f.notifier.err = errors.New("brokers unreachable")

	outcome, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestHandle_InfrastructureFailurePropagates(t *testing.T) {
	f := newFixture()
	f.store.txErr = errors.New("database unreachable")

	_, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.Error(t, err, "infrastructure failures must surface so the gateway redelivers")
}

func TestHandle_LedgerFailurePropagates(t *testing.T) {
	f := newFixture()
	f.addPayment("pi_A", domain.StatusPending, 10000)
	f.store.ledgerErr = errors.New("database unreachable")

	_, err := f.handler.Handle(context.Background(), succeeded("evt_1", "pi_A"))
	require.Error(t, err, "an unguarded event must never be processed")
	assert.Equal(t, 0, f.store.paymentSaves)
}

func TestHandle_ChargeIDFallbackResolution(t *testing.T) {
	f := newFixture()
	// Payment row created from a bare charge, before intent ids were stored.
	f.addPayment("ch_456", domain.StatusCompleted, 10000, 1)
	f.addOrder(1, domain.OrderConfirmed)

	outcome, err := f.handler.Handle(context.Background(), domain.ChargeRefunded{
		EventMeta:      domain.EventMeta{ID: "evt_1", Ref: "pi_999"},
		ChargeID:       "ch_456",
		AmountRefunded: 10000,
		AmountTotal:    10000,
		FullRefund:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, domain.StatusRefunded, f.store.payments["ch_456"].Status)
}

func TestHandle_MissingEventIDRejected(t *testing.T) {
	f := newFixture()

	_, err := f.handler.Handle(context.Background(), succeeded("", "pi_A"))
	require.Error(t, err)
	assert.Equal(t, 0, f.store.txCalls)
}
