package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/retry"
	"github.com/talentbridge/go-apiclient/transport"
)

// Get reads a resource.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (envelope.Envelope[json.RawMessage], error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post creates a resource. payload is encoded as JSON; nil sends no body.
func (c *Client) Post(ctx context.Context, path string, payload interface{}, opts ...RequestOption) (envelope.Envelope[json.RawMessage], error) {
	return c.do(ctx, http.MethodPost, path, payload, opts)
}

// Put replaces a resource.
func (c *Client) Put(ctx context.Context, path string, payload interface{}, opts ...RequestOption) (envelope.Envelope[json.RawMessage], error) {
	return c.do(ctx, http.MethodPut, path, payload, opts)
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (envelope.Envelope[json.RawMessage], error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts)
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, opts []RequestOption) (envelope.Envelope[json.RawMessage], error) {
	o := c.callOptions(opts)

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return envelope.Envelope[json.RawMessage]{}, fmt.Errorf("marshal %s %s payload: %w", method, path, err)
		}
		body = b
	}

	if o.requestID == "" {
		o.requestID = uuid.NewString()
	}
	ctx, release := c.inflight.track(ctx, o.requestID)
	defer release()

	policy := c.cfg.RetryPolicy
	if o.policy != nil {
		policy = *o.policy
	}
	meta := transport.NewRequestContext(method, o.requestID)

	call := func(ctx context.Context) (envelope.Envelope[json.RawMessage], error) {
		return retry.Do(ctx, policy, func(ctx context.Context, attempt int) (envelope.Envelope[json.RawMessage], error) {
			meta.Attempt = attempt
			return c.transport.Do(ctx, &transport.Request{
				Method:  method,
				Path:    path,
				Query:   o.query,
				Header:  o.header,
				Body:    body,
				Timeout: o.timeout,
				Meta:    meta,
			})
		}, c.retryOptions()...)
	}

	if c.cache == nil {
		return call(ctx)
	}
	if method != http.MethodGet {
		c.cache.invalidate(path)
		return call(ctx)
	}
	if o.noCache {
		return call(ctx)
	}

	target, err := c.transport.ResolveURL(path, o.query)
	if err != nil {
		return envelope.Envelope[json.RawMessage]{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	token, _ := c.Credentials().Get()
	return c.cache.do(ctx, cacheKey(method, target, token), path, call)
}

// Get is the typed form of Client.Get.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (envelope.Envelope[T], error) {
	return decoded[T](c.Get(ctx, path, opts...))
}

// Post is the typed form of Client.Post.
func Post[T any](ctx context.Context, c *Client, path string, payload interface{}, opts ...RequestOption) (envelope.Envelope[T], error) {
	return decoded[T](c.Post(ctx, path, payload, opts...))
}

// Put is the typed form of Client.Put.
func Put[T any](ctx context.Context, c *Client, path string, payload interface{}, opts ...RequestOption) (envelope.Envelope[T], error) {
	return decoded[T](c.Put(ctx, path, payload, opts...))
}

// Delete is the typed form of Client.Delete.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (envelope.Envelope[T], error) {
	return decoded[T](c.Delete(ctx, path, opts...))
}

func decoded[T any](e envelope.Envelope[json.RawMessage], err error) (envelope.Envelope[T], error) {
	if err != nil {
		return envelope.Envelope[T]{}, err
	}
	return envelope.Decode[T](e), nil
}
