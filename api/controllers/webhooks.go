package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	stripewebhook "github.com/angelmondragon/relivv-escrow/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// maxWebhookBytes fits checkout session events with expanded line items.
const maxWebhookBytes = 1 << 19

type StripeWebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (*stripewebhook.Outcome, error)
}

// StripeWebhook verifies and reconciles checkout session events. Any non-2xx
// answer makes Stripe redeliver.
func StripeWebhook(svc StripeWebhookProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		outcome, err := svc.Process(ctx, payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
