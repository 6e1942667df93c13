package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorDetail describes why an operation failed.
//
// Status is nil unless a server responded, or the transport reports the
// explicit zero status of a request that got no response.
type ErrorDetail struct {
	Message string          `json:"message"`
	Kind    Kind            `json:"type"`
	Status  *int            `json:"status,omitempty"`
	Code    string          `json:"code,omitempty"`
	Payload json.RawMessage `json:"data,omitempty"`
}

// Option configures an ErrorDetail built with NewError.
type Option func(*ErrorDetail)

// WithStatus sets the status code the failure was observed with.
func WithStatus(status int) Option {
	return func(e *ErrorDetail) { e.Status = &status }
}

// WithCode sets a machine-readable code, usually taken from the remote body.
func WithCode(code string) Option {
	return func(e *ErrorDetail) { e.Code = code }
}

// WithPayload attaches the raw remote body.
func WithPayload(payload []byte) Option {
	return func(e *ErrorDetail) {
		if len(payload) == 0 {
			return
		}
		e.Payload = append(json.RawMessage(nil), payload...)
	}
}

// NewError builds an ErrorDetail. An unknown kind is coerced to KindUnknown.
func NewError(kind Kind, message string, opts ...Option) ErrorDetail {
	if !kind.Valid() {
		kind = KindUnknown
	}
	e := ErrorDetail{
		Kind:    kind,
		Message: message,
	}
	for _, o := range opts {
		o(&e)
	}
	return e
}

func (e *ErrorDetail) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status != nil {
		return fmt.Sprintf("%s (%d): %s", e.Kind, *e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// StatusCode returns the status and whether one was recorded.
func (e *ErrorDetail) StatusCode() (int, bool) {
	if e == nil || e.Status == nil {
		return 0, false
	}
	return *e.Status, true
}

// IsClientError reports a status in [400,500).
func (e *ErrorDetail) IsClientError() bool {
	status, ok := e.StatusCode()
	return ok && status >= 400 && status < 500
}

// Retryable reports whether the retry controller may re-invoke an operation
// that produced this failure.
func (e *ErrorDetail) Retryable() bool {
	if e == nil || e.IsClientError() {
		return false
	}
	return e.Kind.Retryable()
}

// KindOf returns the kind of the first ErrorDetail in err's chain, or
// KindUnknown when there is none.
func KindOf(err error) Kind {
	var e *ErrorDetail
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
