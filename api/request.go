package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/talentbridge/go-apiclient/retry"
)

type callOptions struct {
	query     url.Values
	header    http.Header
	requestID string
	policy    *retry.Policy
	timeout   time.Duration
	noCache   bool
}

// RequestOption customizes a single call.
type RequestOption func(*callOptions)

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(o *callOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

// WithRequestID tags the call so it can be canceled with CancelRequests.
func WithRequestID(id string) RequestOption {
	return func(o *callOptions) { o.requestID = id }
}

// WithRetryPolicy overrides the client's policy for this call.
func WithRetryPolicy(p retry.Policy) RequestOption {
	return func(o *callOptions) { o.policy = &p }
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *callOptions) { o.timeout = d }
}

// NoCache bypasses the response cache.
func NoCache() RequestOption {
	return func(o *callOptions) { o.noCache = true }
}

func (c *Client) callOptions(opts []RequestOption) callOptions {
	o := callOptions{timeout: c.cfg.Timeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
