package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	"github.com/angelmondragon/relivv-escrow/api/validators"
	"github.com/angelmondragon/relivv-escrow/internal/invoices"
	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type InvoiceService interface {
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Invoice, error)
	List(ctx context.Context, filter invoices.ListFilter) (*invoices.ListResult, error)
	ListAll(ctx context.Context, filter invoices.ListFilter) (*invoices.ListResult, error)
}

func ListInvoices(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := invoiceFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.UserID = actor.UserID
		if filter.Role, err = validators.ParseQueryEnum(r, "role", enums.ParsePartyRole); err != nil {
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

func GetInvoice(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svc.Get(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// AdminListInvoices lists invoices across all users. Role gating happens in the router.
func AdminListInvoices(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := invoiceFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListAll(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func invoiceFilter(r *http.Request) (invoices.ListFilter, error) {
	var (
		filter invoices.ListFilter
		err    error
	)
	if filter.Params, err = parsePage(r); err != nil {
		return filter, err
	}
	if filter.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseInvoiceStatus); err != nil {
		return filter, err
	}
	if filter.From, err = validators.ParseQueryTime(r, "from", false); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to", true); err != nil {
		return filter, err
	}
	return filter, nil
}
