package validators

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

const dateLayout = "2006-01-02"

// ParseUUIDParam reads a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParseQueryTime accepts RFC3339 timestamps or plain dates. A plain date used
// as an upper bound covers the whole day.
func ParseQueryTime(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a date").WithDetails(map[string]any{"field": key})
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// ParseQueryEnum runs parse over an optional query parameter.
func ParseQueryEnum[T ~string](r *http.Request, key string, parse func(string) (T, error)) (T, error) {
	var zero T
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return zero, nil
	}
	value, err := parse(raw)
	if err != nil {
		return zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query parameter").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
