package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// Product is the catalog row the escrow engine reserves. The catalog service owns
// every other column; this service only flips is_sold and reserved_transaction_id.
type Product struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID              uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Title                 string          `gorm:"column:title;not null"`
	Price                 decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Currency              enums.Currency  `gorm:"column:currency;type:text;not null;default:'EUR'"`
	IsSold                bool            `gorm:"column:is_sold;not null;default:false"`
	ReservedTransactionID *uuid.UUID      `gorm:"column:reserved_transaction_id;type:uuid"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
