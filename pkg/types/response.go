// Package types holds the JSON envelopes shared by every HTTP answer.
package types

// SuccessEnvelope wraps a successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public form of a failure. Retryable tells operators that the
// same call may succeed later, as with a storefront outage or rate limit.
// RequestID matches the X-Request-Id header and the log entries of the call.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
