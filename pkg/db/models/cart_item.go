package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartItem is one product a buyer intends to purchase.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_cart_items_buyer_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_buyer_product"`
	AddedAt   time.Time `gorm:"column:added_at;not null"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
