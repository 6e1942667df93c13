// Package envelope provides the uniform result shape returned by every
// request pipeline operation.
//
// An Envelope is either a Success carrying data, status and headers, or a
// Failure carrying an ErrorDetail. Expected failures (validation, network,
// server, upload) are values, never Go errors; Go errors are reserved for
// programming faults such as a request that could not be built.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Envelope is a discriminated success/failure result. Success is
// authoritative: when it is true Error is nil, otherwise Data is the zero
// value and Error is set.
type Envelope[T any] struct {
	Success bool
	Data    T
	Status  int
	Headers map[string]string
	Error   *ErrorDetail
}

// Ok builds a Success envelope. Headers are copied.
func Ok[T any](data T, status int, headers map[string]string) Envelope[T] {
	return Envelope[T]{
		Success: true,
		Data:    data,
		Status:  status,
		Headers: copyHeaders(headers),
	}
}

// Fail builds a Failure envelope.
func Fail[T any](detail ErrorDetail) Envelope[T] {
	return Envelope[T]{Error: &detail}
}

// Failf builds a Failure envelope of the given kind with a formatted message.
func Failf[T any](kind Kind, format string, args ...interface{}) Envelope[T] {
	return Fail[T](NewError(kind, fmt.Sprintf(format, args...)))
}

// Validation builds a ValidationError Failure. It never performs I/O.
func Validation[T any](message string) Envelope[T] {
	return Fail[T](NewError(KindValidation, message))
}

// Retype re-surfaces a Failure unchanged under a different data type.
// Calling it on a Success is a programming error and panics.
func Retype[U, T any](e Envelope[T]) Envelope[U] {
	if e.Success {
		panic("envelope: Retype called on a Success envelope")
	}
	return Envelope[U]{Error: e.Error}
}

// Decode JSON-decodes the raw data of a Success envelope into T. A Failure
// is retyped unchanged; undecodable data becomes an UnknownError that keeps
// the remote status.
func Decode[T any](e Envelope[json.RawMessage]) Envelope[T] {
	if !e.Success {
		return Retype[T](e)
	}

	var data T
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return Fail[T](NewError(KindUnknown,
				fmt.Sprintf("decode response: %s", err),
				WithStatus(e.Status),
				WithPayload(e.Data),
			))
		}
	}

	return Ok(data, e.Status, e.Headers)
}

// Err returns nil for a Success and the ErrorDetail otherwise.
func (e Envelope[T]) Err() error {
	if e.Success {
		return nil
	}
	if e.Error == nil {
		return &ErrorDetail{Kind: KindUnknown, Message: "failure without detail"}
	}
	return e.Error
}

// Kind returns the failure kind, or an empty Kind for a Success.
func (e Envelope[T]) Kind() Kind {
	if e.Success || e.Error == nil {
		return ""
	}
	return e.Error.Kind
}

// Header returns a response header value of a Success envelope.
func (e Envelope[T]) Header(key string) string {
	return e.Headers[key]
}

type successJSON[T any] struct {
	Success bool              `json:"success"`
	Data    T                 `json:"data"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
}

type failureJSON struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// MarshalJSON writes only the populated variant.
func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	if e.Success {
		return json.Marshal(successJSON[T]{
			Success: true,
			Data:    e.Data,
			Status:  e.Status,
			Headers: e.Headers,
		})
	}
	return json.Marshal(failureJSON{Success: false, Error: e.Error})
}

// UnmarshalJSON reads either variant; the success flag decides which one.
func (e *Envelope[T]) UnmarshalJSON(b []byte) error {
	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}

	if probe.Success {
		var s successJSON[T]
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = Ok(s.Data, s.Status, s.Headers)
		return nil
	}

	var f failureJSON
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if f.Error == nil {
		f.Error = &ErrorDetail{Kind: KindUnknown, Message: "failure without detail"}
	}
	*e = Envelope[T]{Error: f.Error}
	return nil
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
