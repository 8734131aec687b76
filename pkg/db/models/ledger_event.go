package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to a transaction.
type LedgerEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:ux_ledger_events_transaction_type"`
	Type          enums.LedgerEventType `gorm:"column:type;type:text;not null;uniqueIndex:ux_ledger_events_transaction_type"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      enums.Currency        `gorm:"column:currency;type:text;not null"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
