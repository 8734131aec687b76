package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	"github.com/angelmondragon/relivv-escrow/api/validators"
	"github.com/angelmondragon/relivv-escrow/internal/checkout"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type CheckoutStatusService interface {
	GetCheckoutStatus(ctx context.Context, sessionID string, buyerID uuid.UUID) (*payments.CheckoutStatus, error)
}

type checkoutProductRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

// CheckoutProduct opens a hosted payment page for a single product. Return
// URLs are built from the configured storefront origin, never from the request.
func CheckoutProduct(svc checkout.Service, origin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutProductRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutProduct(r.Context(), actor.UserID, uuid.MustParse(payload.ProductID), origin)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutCart opens one payment page covering every available cart item.
func CheckoutCart(svc checkout.Service, origin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutCart(r.Context(), actor.UserID, origin)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func CheckoutStatus(svc CheckoutStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		status, err := svc.GetCheckoutStatus(r.Context(), sessionID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
