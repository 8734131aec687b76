// Package payments talks to the payment gateway and turns its asynchronous,
// possibly duplicated status reports into exactly-once escrow transitions.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// LineItem is one product line shown on the hosted checkout page.
type LineItem struct {
	TransactionID uuid.UUID
	Name          string
	Amount        decimal.Decimal
}

// CheckoutRequest describes the session to open with the gateway.
type CheckoutRequest struct {
	BuyerID    uuid.UUID
	Currency   enums.Currency
	Items      []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Total is the amount the buyer is charged.
func (r CheckoutRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// CheckoutSession is the gateway's answer to a checkout request.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// WebhookEvent is a verified gateway notification reduced to what the
// reconciler needs. Relevant is false for event types the engine ignores.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	Status    enums.PaymentStatus
	Relevant  bool
}

// Gateway is the payment provider contract.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetStatus(ctx context.Context, sessionID string) (enums.PaymentStatus, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
