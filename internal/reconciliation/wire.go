//go:build wireinject
// +build wireinject

package reconciliation

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/internal/reconciliation/handler"
)

// InitializeHandler initializes the reconciliation handler with all
// dependencies. notifier and dedupe are constructed by the caller because
// Kafka and Redis are optional at deploy time.
func InitializeHandler(db *gorm.DB, notifier domain.Notifier, dedupe domain.Deduper) (*handler.ReconciliationHandler, error) {
	wire.Build(
		AllHandlersSet,
		handler.NewReconciliationHandler,
	)
	return nil, nil
}
