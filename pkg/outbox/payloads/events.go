package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// TransactionRef is the common shape shared by every transaction-scoped event.
type TransactionRef struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	ProductID     uuid.UUID               `json:"product_id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	Status        enums.TransactionStatus `json:"status"`
}

// PaymentHeldEvent tells the buyer and seller that money is in escrow.
type PaymentHeldEvent struct {
	TransactionRef
	PaymentSessionID string          `json:"payment_session_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         enums.Currency  `json:"currency"`
	HeldAt           time.Time       `json:"held_at"`
}

// PaymentFailedEvent reports that a checkout failed or expired before capture.
type PaymentFailedEvent struct {
	TransactionRef
	PaymentSessionID string              `json:"payment_session_id"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
}

// PaymentOrphanedEvent flags money captured for a transaction that was already
// closed. Support issues a manual refund.
type PaymentOrphanedEvent struct {
	TransactionRef
	PaymentSessionID string          `json:"payment_session_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         enums.Currency  `json:"currency"`
}

// InvoiceIssuedEvent carries the invoice identity for the buyer's receipt.
type InvoiceIssuedEvent struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
	Currency      enums.Currency  `json:"currency"`
}

// DeliveryUpdatedEvent is used for both confirmed and disputed deliveries.
type DeliveryUpdatedEvent struct {
	TransactionRef
	DeliveryStatus enums.DeliveryStatus `json:"delivery_status"`
	ConfirmedAt    *time.Time           `json:"confirmed_at,omitempty"`
	AutoReleaseAt  *time.Time           `json:"auto_release_at,omitempty"`
}

// FundsReleasedEvent tells the seller their payout is on its way.
type FundsReleasedEvent struct {
	TransactionRef
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Commission   decimal.Decimal `json:"commission"`
	Currency     enums.Currency  `json:"currency"`
	ReleasedAt   time.Time       `json:"released_at"`
}

// TransactionClosedEvent covers refunds and pre-payment cancellations.
type TransactionClosedEvent struct {
	TransactionRef
	ActorID      uuid.UUID       `json:"actor_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Currency     enums.Currency  `json:"currency"`
	ClosedAt     time.Time       `json:"closed_at"`
}
