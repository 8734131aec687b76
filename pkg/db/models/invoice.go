package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// Invoice is issued at most once per transaction, when payment is held.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;uniqueIndex:ux_invoices_invoice_number" json:"invoice_number"`
	TransactionID uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:ux_invoices_transaction_id" json:"transaction_id"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Commission    decimal.Decimal     `gorm:"column:commission;type:numeric(12,2);not null" json:"commission"`
	VATAmount     decimal.Decimal     `gorm:"column:vat_amount;type:numeric(12,2);not null" json:"vat_amount"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null" json:"currency"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	InvoiceStatus enums.InvoiceStatus `gorm:"column:invoice_status;type:text;not null" json:"invoice_status"`
	IssuedAt      time.Time           `gorm:"column:issued_at;not null" json:"issued_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// InvoiceSequence holds the last issued invoice number per calendar year.
type InvoiceSequence struct {
	Year      int `gorm:"column:year;primaryKey;autoIncrement:false"`
	LastValue int `gorm:"column:last_value;not null"`
}
