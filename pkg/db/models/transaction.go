package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// Transaction is the escrow record of one buyer purchasing one product.
type Transaction struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID           uuid.UUID               `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	BuyerID             uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Amount              decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	CommissionRate      decimal.Decimal         `gorm:"column:commission_rate;type:numeric(5,4);not null" json:"commission_rate"`
	Commission          decimal.Decimal         `gorm:"column:commission;type:numeric(12,2);not null" json:"commission"`
	TotalAmount         decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null" json:"currency"`
	Status              enums.TransactionStatus `gorm:"column:status;type:text;not null" json:"status"`
	PaymentProvider     enums.PaymentProvider   `gorm:"column:payment_provider;type:text;not null" json:"payment_provider"`
	PaymentSessionID    *string                 `gorm:"column:payment_session_id" json:"payment_session_id,omitempty"`
	DeliveryStatus      enums.DeliveryStatus    `gorm:"column:delivery_status;type:text;not null" json:"delivery_status"`
	DeliveryConfirmedAt *time.Time              `gorm:"column:delivery_confirmed_at" json:"delivery_confirmed_at,omitempty"`
	AutoReleaseAt       *time.Time              `gorm:"column:auto_release_at" json:"auto_release_at,omitempty"`
	CompletedAt         *time.Time              `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt         *time.Time              `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAt          *time.Time              `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	Version             int                     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// IsParty reports whether the user is the buyer or the seller.
func (t Transaction) IsParty(userID uuid.UUID) bool {
	return t.BuyerID == userID || t.SellerID == userID
}
