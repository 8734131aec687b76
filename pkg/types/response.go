// Package types holds the JSON envelopes shared by every HTTP response.
package types

// SuccessEnvelope wraps a successful payload as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps a failure as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError is the public face of a pkg/errors code. RequestID echoes the
// X-Request-Id header so support can find the matching log lines.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
