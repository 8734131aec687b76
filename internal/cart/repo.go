package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
)

// Repository exposes persistence operations for cart items.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// ListByBuyer returns the buyer's items, oldest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.DB(ctx).
		Where("buyer_id = ?", buyerID).
		Order("added_at ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return items, nil
}

// Add inserts the item. It reports false when the product is already in the cart.
func (r *Repository) Add(ctx context.Context, item *models.CartItem) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return false, fmt.Errorf("add cart item: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Remove deletes one product from the buyer's cart.
func (r *Repository) Remove(ctx context.Context, buyerID, productID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, fmt.Errorf("remove cart item: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RemoveProducts deletes the listed products from the buyer's cart.
func (r *Repository) RemoveProducts(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	if err := r.DB(ctx).
		Where("buyer_id = ? AND product_id IN ?", buyerID, productIDs).
		Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("remove cart items: %w", err)
	}
	return nil
}

// Clear empties the buyer's cart.
func (r *Repository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if err := r.DB(ctx).Where("buyer_id = ?", buyerID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
