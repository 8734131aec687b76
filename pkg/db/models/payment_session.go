package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// PaymentSession is one gateway checkout covering one or more transactions.
type PaymentSession struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SessionID     string                `gorm:"column:session_id;not null;uniqueIndex:ux_payment_sessions_session_id"`
	Provider      enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	BuyerID       uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      enums.Currency        `gorm:"column:currency;type:text;not null"`
	PaymentStatus enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	RedirectURL   string                `gorm:"column:redirect_url;not null"`
	Source        enums.CheckoutSource  `gorm:"column:source;type:text;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *PaymentSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
