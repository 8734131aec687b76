package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestCatalogCoversEveryCode(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound,
		CodeConflict, CodeStateConflict, CodeIdempotency, CodeRateLimit,
		CodeInternal, CodeDependency, CodeNotYetEligible, CodeGateway,
	}
	for _, code := range codes {
		meta, ok := catalog[code]
		require.True(t, ok, code)
		require.NotEmpty(t, meta.PublicMessage, code)
		// Anything the client may retry must be a 5xx or an explicit "too early".
		if meta.Retryable {
			require.True(t, meta.HTTPStatus >= 500 || meta.HTTPStatus == http.StatusTooEarly, code)
		}
	}
}

func TestMetadataForStatuses(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, MetadataFor(CodeStateConflict).HTTPStatus)
	require.Equal(t, http.StatusTooEarly, MetadataFor(CodeNotYetEligible).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MetadataFor(CodeGateway).HTTPStatus)
	require.Equal(t, http.StatusTooManyRequests, MetadataFor(CodeRateLimit).HTTPStatus)
	require.Equal(t, catalog[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestPublicMessageHidesInternalText(t *testing.T) {
	require.Equal(t, "price must be positive", New(CodeValidation, "price must be positive").PublicMessage())
	require.Equal(t, "internal server error", New(CodeInternal, "pq: relation missing").PublicMessage())
	require.Equal(t, "payment provider unavailable", New(CodeGateway, "stripe 502").PublicMessage())
	require.Equal(t, "resource not found", New(CodeNotFound, "").PublicMessage())

	var nilErr *Error
	require.Equal(t, CodeInternal, nilErr.Code())
	require.Equal(t, "internal server error", nilErr.PublicMessage())
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeConflict, cause, "product already reserved").WithDetails(map[string]any{"product_id": "p1"})

	require.ErrorIs(t, err, cause)
	require.Equal(t, "CONFLICT: product already reserved: boom", err.Error())
	require.Equal(t, map[string]any{"product_id": "p1"}, err.Details())
	require.Nil(t, New(CodeValidation, "x").Details())
}

func TestAsAndIsCodeWalkTheChain(t *testing.T) {
	sentinel := stdErrors.New("already reserved")
	err := fmt.Errorf("reserve: %w", Wrap(CodeConflict, sentinel, "product already reserved"))

	require.NotNil(t, As(err))
	require.True(t, IsCode(err, CodeConflict))
	require.False(t, IsCode(err, CodeNotFound))
	require.ErrorIs(t, err, sentinel)
	require.Nil(t, As(nil))
	require.Nil(t, As(sentinel))
	require.False(t, IsCode(nil, CodeConflict))
}

func TestDiagnoseCollectsChainAndPostgresFields(t *testing.T) {
	pgErr := &pq.Error{Code: "23505", Constraint: "transactions_active_product_key", Table: "transactions"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "product already reserved")

	diag := Diagnose(err)
	require.Equal(t, CodeConflict, diag.Code)
	require.Len(t, diag.Chain, 3)
	fields := diag.Fields()
	require.Equal(t, "23505", fields["pg_code"])
	require.Equal(t, "transactions_active_product_key", fields["pg_constraint"])

	require.NotContains(t, Diagnose(stdErrors.New("boom")).Fields(), "pg_code")
	require.Empty(t, Diagnose(nil).Message)
}
