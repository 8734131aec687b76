package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
)

// Repository manages persistence for ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateOnce inserts the event unless the transaction already has one of
	// the same type. It reports whether a row was written.
	CreateOnce(ctx context.Context, event *models.LedgerEvent) (bool, error)
	ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEvent, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) CreateOnce(ctx context.Context, event *models.LedgerEvent) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
