package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// Repository reads catalog rows and owns the is_sold reservation flag.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Create inserts a catalog row. Production rows come from the catalog service;
// this exists for seeding and tests.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Create(product).Error
}

// FindByID loads the product or returns a NOT_FOUND error.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// FindByIDs loads every listed product keyed by id. Missing ids are absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Claim flips is_sold false→true and records the owning transaction. It
// reports false when another caller got there first.
func (r *Repository) Claim(ctx context.Context, productID, transactionID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND is_sold = ?", productID, false).
		Updates(map[string]any{
			"is_sold":                 true,
			"reserved_transaction_id": transactionID,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "claim product")
	}
	return res.RowsAffected == 1, nil
}

// ReleaseReservation puts the product back on sale if, and only if, the given
// transaction still owns the reservation.
func (r *Repository) ReleaseReservation(ctx context.Context, productID, transactionID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND reserved_transaction_id = ?", productID, transactionID).
		Updates(map[string]any{
			"is_sold":                 false,
			"reserved_transaction_id": nil,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release product reservation")
	}
	return res.RowsAffected == 1, nil
}
