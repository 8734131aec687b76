// Package responses renders the JSON envelopes every handler answers with.
package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/types"
)

// RequestIDHeader is set on every response by the request id middleware.
const RequestIDHeader = "X-Request-Id"

// fallbackBody is sent when an envelope cannot be encoded.
const fallbackBody = `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Errors without a pkg/errors
// code are reported as INTERNAL_ERROR and details only leave the process for
// codes that allow them. 5xx responses are logged as errors, the rest as
// warnings.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("error response without an error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.APIError{
		Code:      string(typed.Code()),
		Message:   typed.PublicMessage(),
		RequestID: w.Header().Get(RequestIDHeader),
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Diagnose(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: body})
}

// writeJSON encodes before touching the header so a marshal failure can still
// turn into a clean 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallbackBody))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
