// Package transport implements the interceptor chain every outbound request
// passes through: bearer auth and timing on the way out, envelope
// normalization on the way back.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/talentbridge/go-apiclient/credential"
	"github.com/talentbridge/go-apiclient/envelope"
)

const (
	// SlowRequestThreshold is the duration above which a completed request is
	// reported as slow.
	SlowRequestThreshold = 1000 * time.Millisecond
	// HeaderRequestID carries the per-call request id.
	HeaderRequestID = "X-Request-Id"

	authPathMarker = "/auth/"

	msgServerError = "Server error"
	msgNoResponse  = "No response from server"
	msgCanceled    = "Request canceled"
)

// Transport converts raw HTTP exchanges into envelopes.
type Transport struct {
	client      *retryablehttp.Client
	baseURL     *url.URL
	credentials credential.Store
	navigator   Navigator
	logger      log.Logger
	userAgent   string
	now         func() time.Time
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the underlying client. Its retry settings are left
// untouched; use NewHTTPClient to get one that never retries on its own.
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(t *Transport) { t.client = client }
}

// WithCredentials sets the token store read by the outgoing phase and
// cleared on 401.
func WithCredentials(store credential.Store) Option {
	return func(t *Transport) { t.credentials = store }
}

// WithNavigator sets the receiver of the login navigation signal.
func WithNavigator(n Navigator) Option {
	return func(t *Transport) { t.navigator = n }
}

// WithUserAgent ...
func WithUserAgent(ua string) Option {
	return func(t *Transport) { t.userAgent = ua }
}

// WithClock replaces the clock used for request timing.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// NewHTTPClient returns a retryablehttp client that performs exactly one
// attempt per Do and hands every response back to the caller.
func NewHTTPClient(logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	client.CheckRetry = createNoRetryFunction(logger)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

func createNoRetryFunction(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			logger.Debugf("CheckRetry: attempt failed, retries are handled by the caller: %s", err)
		}
		return false, nil
	}
}

// New creates a Transport for baseURL.
func New(baseURL string, logger log.Logger, opts ...Option) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", baseURL)
	}

	t := &Transport{
		baseURL:     u,
		credentials: credential.NewMemoryStore(""),
		navigator:   NopNavigator(),
		logger:      logger,
		now:         time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.client == nil {
		t.client = NewHTTPClient(logger)
	}
	return t, nil
}

// HTTPClient returns the underlying client.
func (t *Transport) HTTPClient() *retryablehttp.Client {
	return t.client
}

// Credentials returns the token store.
func (t *Transport) Credentials() credential.Store {
	return t.credentials
}

// ResolveURL returns the absolute URL for path and query.
func (t *Transport) ResolveURL(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	var u url.URL
	if ref.IsAbs() {
		u = *ref
	} else {
		u = *t.baseURL
		u.Path = strings.TrimRight(t.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		u.RawQuery = ref.RawQuery
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Do performs a single attempt. Expected failures come back as Failure
// envelopes; the error is non-nil only when the request could not be built.
func (t *Transport) Do(ctx context.Context, req *Request) (envelope.Envelope[json.RawMessage], error) {
	meta := req.meta()
	if meta.RequestID == "" {
		meta.RequestID = uuid.NewString()
	}

	target, err := t.ResolveURL(req.Path, req.Query)
	if err != nil {
		return envelope.Envelope[json.RawMessage]{}, fmt.Errorf("resolve %s: %w", req.Path, err)
	}
	meta.Method = req.Method
	meta.URL = target

	attemptCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := t.build(attemptCtx, req, target)
	if err != nil {
		return envelope.Envelope[json.RawMessage]{}, fmt.Errorf("build request %s %s: %w", req.Method, target, err)
	}

	t.intercept(httpReq, meta)
	out := t.send(ctx, httpReq)

	return t.complete(req, meta, out), nil
}

func (t *Transport) build(ctx context.Context, req *Request, target string) (*retryablehttp.Request, error) {
	var body interface{}
	switch {
	case req.BodyFunc != nil:
		bodyFunc := req.BodyFunc
		body = retryablehttp.ReaderFunc(func() (io.Reader, error) {
			return bodyFunc()
		})
	case req.Body != nil:
		body = req.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	} else if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if req.BodyFunc != nil && req.ContentLength > 0 {
		// Add Content-Length header manually because retryablehttp can't know it for a ReaderFunc
		httpReq.Header.Set("Content-Length", strconv.FormatInt(req.ContentLength, 10))
		httpReq.ContentLength = req.ContentLength
	}

	return httpReq, nil
}

// intercept is the outgoing phase.
func (t *Transport) intercept(req *retryablehttp.Request, meta *RequestContext) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set(HeaderRequestID, meta.RequestID)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	if token, ok := t.credentials.Get(); ok {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	meta.Start = t.now()
	t.logger.Debugf("%s %s (attempt %d, request %s)", meta.Method, meta.URL, meta.Attempt+1, meta.RequestID)
}

type outcomeKind int

const (
	// the remote answered with a status
	outcomeResponded outcomeKind = iota
	// the request went out but nothing usable came back
	outcomeNoResponse
	// the caller gave up
	outcomeCanceled
)

type outcome struct {
	kind   outcomeKind
	status int
	header http.Header
	body   []byte
	err    error
}

func (t *Transport) send(callerCtx context.Context, req *retryablehttp.Request) outcome {
	resp, err := t.client.Do(req)
	if err != nil {
		if resp != nil {
			t.closeBody(resp)
		}
		return t.failedOutcome(callerCtx, err)
	}
	defer t.closeBody(resp)

	dump, dumpErr := httputil.DumpResponse(resp, false)
	if dumpErr != nil {
		t.logger.Warnf("error while dumping response: %s", dumpErr)
	}
	t.logger.Debugf("Response dump: %s", string(dump))

	body, err := readBody(resp)
	if err != nil {
		return t.failedOutcome(callerCtx, fmt.Errorf("read response body: %w", err))
	}

	return outcome{
		kind:   outcomeResponded,
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
	}
}

func (t *Transport) failedOutcome(callerCtx context.Context, err error) outcome {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return outcome{kind: outcomeCanceled, err: err}
	}
	return outcome{kind: outcomeNoResponse, err: err}
}

func (t *Transport) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		t.logger.Printf("%s", err)
	}
}

// complete is the incoming phase.
func (t *Transport) complete(req *Request, meta *RequestContext, out outcome) envelope.Envelope[json.RawMessage] {
	duration := meta.Elapsed(t.now())

	switch out.kind {
	case outcomeResponded:
		if out.status >= 200 && out.status < 300 {
			if duration > SlowRequestThreshold {
				t.logger.Warnf("Slow request: %s %s took %dms", meta.Method, meta.URL, duration.Milliseconds())
			}
			t.logger.Debugf("%s %s completed in %dms", meta.Method, meta.URL, duration.Milliseconds())
			return envelope.Ok(json.RawMessage(out.body), out.status, flattenHeader(out.header))
		}

		detail := serverError(out.status, out.body)
		if out.status == http.StatusUnauthorized {
			t.handleUnauthorized(req.Path)
		}
		t.logger.Errorf("%s %s failed in %dms: %s", meta.Method, meta.URL, duration.Milliseconds(), detail.Error())
		return envelope.Fail[json.RawMessage](detail)
	case outcomeCanceled:
		t.logger.Debugf("%s %s canceled: %s", meta.Method, meta.URL, out.err)
		return envelope.Fail[json.RawMessage](envelope.NewError(envelope.KindNetwork, msgCanceled))
	default:
		t.logger.Errorf("%s %s failed in %dms: %s", meta.Method, meta.URL, duration.Milliseconds(), out.err)
		return envelope.Fail[json.RawMessage](envelope.NewError(envelope.KindTimeout, msgNoResponse, envelope.WithStatus(0)))
	}
}

func (t *Transport) handleUnauthorized(path string) {
	if err := t.credentials.Clear(); err != nil {
		t.logger.Errorf("Failed to clear credentials: %s", err)
	}

	// auth endpoints answer 401 for bad credentials, redirecting there would loop
	if strings.Contains(path, authPathMarker) {
		return
	}
	t.logger.Warnf("Credentials rejected, navigating to %s", LoginPath)
	t.navigator.NavigateToLogin()
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
