package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// maxBodyBytes caps JSON request bodies; every payload here is a handful of ids.
const maxBodyBytes = 64 << 10

var structValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so details line up with what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// DecodeJSONBody strictly decodes the body into dest and runs its validate tags.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"body": decodeProblem(err)})
	}
	if err := structValidator.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
		}
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = describe(fe)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func decodeProblem(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "body is empty"
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)
	default:
		return err.Error()
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "max":
		return fmt.Sprintf("violates %s=%s", fe.Tag(), fe.Param())
	default:
		return "is invalid"
	}
}

// ParseQueryInt reads an optional integer query parameter bounded to [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key})
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be between %d and %d", key, lo, hi)).
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}
