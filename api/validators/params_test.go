package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", id.String())
	got, err := ParseUUIDParam(req, "id")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "nope")
	if _, err := ParseUUIDParam(req, "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := ParseUUIDParam(httptest.NewRequest(http.MethodGet, "/", nil), "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31&at=2026-03-05T10:00:00Z&bad=yesterday", nil)

	from, err := ParseQueryTime(req, "from", false)
	if err != nil || !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v (%v)", from, err)
	}
	to, err := ParseQueryTime(req, "to", true)
	if err != nil || to.Day() != 31 || to.Hour() != 23 {
		t.Fatalf("unexpected to %v (%v)", to, err)
	}
	at, err := ParseQueryTime(req, "at", false)
	if err != nil || at.Hour() != 10 {
		t.Fatalf("unexpected at %v (%v)", at, err)
	}
	missing, err := ParseQueryTime(req, "missing", false)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing key, got %v (%v)", missing, err)
	}
	if _, err := ParseQueryTime(req, "bad", false); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryEnum(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?role=seller&status=bogus", nil)

	role, err := ParseQueryEnum(req, "role", enums.ParsePartyRole)
	if err != nil || role != enums.PartyRoleSeller {
		t.Fatalf("unexpected role %q (%v)", role, err)
	}
	if _, err := ParseQueryEnum(req, "status", enums.ParseTransactionStatus); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	empty, err := ParseQueryEnum(req, "missing", enums.ParseTransactionStatus)
	if err != nil || empty != "" {
		t.Fatalf("expected empty status, got %q (%v)", empty, err)
	}
}
