package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	"github.com/angelmondragon/relivv-escrow/api/validators"
	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type TransactionService interface {
	Create(ctx context.Context, buyerID, productID uuid.UUID) (*models.Transaction, error)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Transaction, error)
	List(ctx context.Context, filter transactions.ListFilter) (*transactions.ListResult, error)
	ConfirmDelivery(ctx context.Context, id, buyerID uuid.UUID, outcome enums.DeliveryOutcome) (*models.Transaction, error)
}

type EscrowCanceller interface {
	Cancel(ctx context.Context, id, actorID uuid.UUID) (*escrow.CancelResult, error)
}

type createTransactionRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

type deliveryRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=delivered dispute"`
}

// CreateTransaction reserves a product for the caller without opening a checkout.
func CreateTransaction(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTransactionRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Create(r.Context(), actor.UserID, uuid.MustParse(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// ListTransactions returns the caller's history. role narrows to buyer or seller.
func ListTransactions(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := transactions.ListFilter{UserID: actor.UserID}
		if filter.Params, err = parsePage(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Role, err = validators.ParseQueryEnum(r, "role", enums.ParsePartyRole); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseTransactionStatus); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.From, err = validators.ParseQueryTime(r, "from", false); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to", true); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetTransaction(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Get(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// ConfirmDelivery records the buyer's outcome: delivered starts the release
// window, dispute freezes it.
func ConfirmDelivery(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deliveryRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ConfirmDelivery(r.Context(), id, actor.UserID, enums.DeliveryOutcome(payload.Outcome))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// CancelTransaction refunds held funds or drops a pending reservation.
func CancelTransaction(svc EscrowCanceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), id, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
