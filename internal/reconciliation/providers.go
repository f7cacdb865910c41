package reconciliation

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/internal/reconciliation/repository"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/command"
	"github.com/tair/payment-reconciliation/internal/reconciliation/usecase/query"
)

// ProvideStore provides the transactional store, wrapped with tracing
func ProvideStore(db *gorm.DB) domain.Store {
	return repository.NewTracingStore(repository.NewGormStore(db))
}

// ProvideHistoryStore provides the audit trail store
func ProvideHistoryStore(db *gorm.DB) domain.HistoryStore {
	return repository.NewGormHistoryStore(db)
}

// Command Handlers Providers
func ProvideReconcileEventHandler(
	store domain.Store,
	history domain.HistoryStore,
	notifier domain.Notifier,
	dedupe domain.Deduper,
) *command.ReconcileEventHandler {
	return command.NewReconcileEventHandler(store, history, notifier, dedupe)
}

// Query Handlers Providers
func ProvideGetPaymentHandler(store domain.Store) *query.GetPaymentHandler {
	return query.NewGetPaymentHandler(store)
}

func ProvideListOrderHistoryHandler(history domain.HistoryStore) *query.ListOrderHistoryHandler {
	return query.NewListOrderHistoryHandler(history)
}

// Wire sets
var RepositorySet = wire.NewSet(
	ProvideStore,
	ProvideHistoryStore,
)

var CommandHandlerSet = wire.NewSet(
	ProvideReconcileEventHandler,
)

var QueryHandlerSet = wire.NewSet(
	ProvideGetPaymentHandler,
	ProvideListOrderHistoryHandler,
)

var AllHandlersSet = wire.NewSet(
	RepositorySet,
	CommandHandlerSet,
	QueryHandlerSet,
)
