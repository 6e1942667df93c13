package transport

import (
	"io"
	"net/http"
	"net/url"
	"time"
)

// BodyFunc returns a fresh streaming body for one attempt.
type BodyFunc func() (io.ReadCloser, error)

// Request describes one outbound call. Path is resolved against the
// transport's base URL unless it is an absolute URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is sent as application/json unless ContentType says otherwise.
	Body []byte
	// BodyFunc streams the body; it takes precedence over Body.
	BodyFunc      BodyFunc
	ContentLength int64
	ContentType   string

	// Timeout bounds a single attempt. Zero means no per-attempt deadline.
	Timeout time.Duration

	// Meta is the per-call RequestContext. It is created on first use.
	Meta *RequestContext
}

// RequestContext is per-call metadata used for timing and retry bookkeeping.
// It lives for one call and is never shared between calls.
type RequestContext struct {
	Method    string
	URL       string
	RequestID string
	// Attempt is the zero-based index of the current attempt.
	Attempt int
	// Start is taken from the monotonic clock at the start of each attempt.
	Start time.Time
}

// NewRequestContext ...
func NewRequestContext(method, requestID string) *RequestContext {
	return &RequestContext{Method: method, RequestID: requestID}
}

// Elapsed returns the time spent in the current attempt.
func (rc *RequestContext) Elapsed(now time.Time) time.Duration {
	if rc == nil || rc.Start.IsZero() {
		return 0
	}
	return now.Sub(rc.Start)
}

func (r *Request) meta() *RequestContext {
	if r.Meta == nil {
		r.Meta = NewRequestContext(r.Method, "")
	}
	return r.Meta
}
