// Package errors is the typed error vocabulary shared by services and the
// HTTP layer. A Code decides the status, retry hint and how much of the error
// a client may see.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	// CodeNotYetEligible marks operations whose time gate has not elapsed yet.
	CodeNotYetEligible Code = "NOT_YET_ELIGIBLE"
	// CodeGateway marks failures reported by, or while reaching, the payment provider.
	CodeGateway Code = "GATEWAY_ERROR"
)

// Metadata is the HTTP contract of a Code. ExposeMessage lets the error's own
// message replace PublicMessage in responses.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

var catalog = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:   {http.StatusUnauthorized, false, "authentication required", false, true},
	CodeForbidden:      {http.StatusForbidden, false, "access denied", false, true},
	CodeNotFound:       {http.StatusNotFound, false, "resource not found", false, true},
	CodeConflict:       {http.StatusConflict, false, "conflict detected", true, true},
	CodeStateConflict:  {http.StatusUnprocessableEntity, false, "state transition disallowed", true, true},
	CodeIdempotency:    {http.StatusConflict, false, "idempotency key reused", true, true},
	CodeRateLimit:      {http.StatusTooManyRequests, false, "rate limit exceeded", false, true},
	CodeInternal:       {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:     {http.StatusServiceUnavailable, true, "dependency unavailable", true, false},
	CodeNotYetEligible: {http.StatusTooEarly, true, "operation not yet eligible", true, true},
	CodeGateway:        {http.StatusBadGateway, true, "payment provider unavailable", false, false},
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error pairs a Code with a message, optional client-facing details and the
// underlying cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to cause. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// WithDetails sets the structured details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// PublicMessage is what a client is allowed to read.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e.Message() != "" {
		return e.Message()
	}
	return meta.PublicMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := string(e.code) + ": " + e.message
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
