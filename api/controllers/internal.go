package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	"github.com/angelmondragon/relivv-escrow/api/validators"
	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type FundsReleaser interface {
	Release(ctx context.Context, id uuid.UUID) (*escrow.ReleaseResult, error)
}

// InternalReleaseFunds lets trusted services force a release once it is due.
// Eligibility rules still apply.
func InternalReleaseFunds(svc FundsReleaser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Release(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
