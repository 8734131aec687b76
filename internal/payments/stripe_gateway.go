package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
	pkgstripe "github.com/angelmondragon/relivv-escrow/pkg/stripe"
)

const defaultGatewayTimeout = 10 * time.Second

// sessionAPI is the slice of the Stripe checkout API the gateway calls.
type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

func (stripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// StripeGateway implements Gateway over Stripe Checkout.
type StripeGateway struct {
	sessions      sessionAPI
	signingSecret string
	timeout       time.Duration
}

// NewStripeGateway builds the gateway from the startup Stripe client.
func NewStripeGateway(client *pkgstripe.Client, timeout time.Duration) (*StripeGateway, error) {
	if client == nil || client.SigningSecret() == "" {
		return nil, errors.New("stripe client required")
	}
	return newStripeGateway(stripeSessions{}, client.SigningSecret(), timeout), nil
}

func newStripeGateway(api sessionAPI, secret string, timeout time.Duration) *StripeGateway {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &StripeGateway{sessions: api, signingSecret: secret, timeout: timeout}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	currency := req.Currency.Lower()
	if currency == "" {
		currency = money.DefaultCurrency.Lower()
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BuyerID.String()),
	}
	params.Context = ctx
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(money.ToCents(item.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	created, err := g.sessions.New(params)
	if err != nil {
		return nil, gatewayError(err, "create checkout session")
	}
	if created == nil || created.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway returned an empty session")
	}
	return &CheckoutSession{SessionID: created.ID, RedirectURL: created.URL}, nil
}

func (g *StripeGateway) GetStatus(ctx context.Context, sessionID string) (enums.PaymentStatus, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return "", gatewayError(err, "fetch checkout session")
	}
	return sessionStatus(sess), nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, signature, g.signingSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify stripe signature")
	}
	return webhookEvent(event)
}

func sessionStatus(sess *stripe.CheckoutSession) enums.PaymentStatus {
	if sess == nil {
		return enums.PaymentStatusPending
	}
	if sess.Status == stripe.CheckoutSessionStatusExpired {
		return enums.PaymentStatusExpired
	}
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return enums.PaymentStatusPaid
	default:
		return enums.PaymentStatusPending
	}
}

func webhookEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	var status enums.PaymentStatus
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		status = enums.PaymentStatusPaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = enums.PaymentStatusPaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		status = enums.PaymentStatusFailed
	case stripe.EventTypeCheckoutSessionExpired:
		status = enums.PaymentStatusExpired
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	// Delayed methods complete the session before the money lands.
	if event.Type == stripe.EventTypeCheckoutSessionCompleted && sessionStatus(&sess) != enums.PaymentStatusPaid {
		out.SessionID = sess.ID
		return out, nil
	}

	out.SessionID = sess.ID
	out.Status = status
	out.Relevant = true
	return out, nil
}

func gatewayError(err error, message string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("%s: timed out", message))
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, message)
}
