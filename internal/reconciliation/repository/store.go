package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
)

// GormStore implements domain.Store on a Postgres database.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore creates a new store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InTransaction runs fn inside a single database transaction. The Store it
// receives locks payment rows it reads, so all mutation for one gateway
// reference is serialized on the row lock. Context cancellation rolls the
// whole transaction back.
func (s *GormStore) InTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func (s *GormStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	record := domain.ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	query := s.db.WithContext(ctx)
	if s.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var payment domain.Payment
	err := query.Where("gateway_reference = ?", reference).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) SavePayment(ctx context.Context, p *domain.Payment) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *GormStore) OrdersByIDs(ctx context.Context, ids []int64) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error
	return orders, err
}

func (s *GormStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	return s.db.WithContext(ctx).Save(o).Error
}

// GormHistoryStore implements domain.HistoryStore.
type GormHistoryStore struct {
	db *gorm.DB
}

// NewGormHistoryStore creates a new history store
func NewGormHistoryStore(db *gorm.DB) *GormHistoryStore {
	return &GormHistoryStore{db: db}
}

func (s *GormHistoryStore) Append(ctx context.Context, entry *domain.OrderHistoryEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormHistoryStore) ListByOrder(ctx context.Context, orderID int64) ([]domain.OrderHistoryEntry, error) {
	var entries []domain.OrderHistoryEntry
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
