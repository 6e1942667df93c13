// Package api is the verb-oriented surface of the request pipeline. Every
// call goes through the transport interceptor chain; reads and writes are
// additionally wrapped in the retry controller, uploads are not.
package api

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/talentbridge/go-apiclient/credential"
	"github.com/talentbridge/go-apiclient/retry"
	"github.com/talentbridge/go-apiclient/transport"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 15 * time.Second
	// UploadTimeoutMultiplier scales Timeout for uploads.
	UploadTimeoutMultiplier = 3
)

// Config is fixed for the lifetime of a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryPolicy retry.Policy
	UserAgent   string
	// CacheTTL enables the GET response cache when positive.
	CacheTTL time.Duration
}

// DefaultConfig ...
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Timeout:     DefaultTimeout,
		RetryPolicy: retry.DefaultPolicy(),
	}
}

type options struct {
	credentials credential.Store
	navigator   transport.Navigator
	logger      log.Logger
	httpClient  *retryablehttp.Client
	breaker     *retry.Breaker
	waiter      retry.Waiter
	now         func() time.Time
}

// Option configures a Client.
type Option func(*options)

// WithCredentials ...
func WithCredentials(store credential.Store) Option {
	return func(o *options) { o.credentials = store }
}

// WithNavigator ...
func WithNavigator(n transport.Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithLogger ...
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient ...
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBreaker routes every retried attempt through b.
func WithBreaker(b *retry.Breaker) Option {
	return func(o *options) { o.breaker = b }
}

// WithWaiter replaces the backoff wait of the retry controller.
func WithWaiter(w retry.Waiter) Option {
	return func(o *options) { o.waiter = w }
}

// WithClock replaces the clock used for request timing and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Client is safe for concurrent use. Construct it once and share it.
type Client struct {
	cfg       Config
	transport *transport.Transport
	logger    log.Logger
	breaker   *retry.Breaker
	waiter    retry.Waiter
	inflight  *registry
	cache     *responseCache
}

// New ...
func New(cfg Config, opts ...Option) (*Client, error) {
	o := options{
		credentials: credential.NewMemoryStore(""),
		navigator:   transport.NopNavigator(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewLogger()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := cfg.RetryPolicy.Validate(); err != nil {
		return nil, err
	}

	tOpts := []transport.Option{
		transport.WithCredentials(o.credentials),
		transport.WithNavigator(o.navigator),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithClock(o.now),
	}
	if o.httpClient != nil {
		tOpts = append(tOpts, transport.WithHTTPClient(o.httpClient))
	}
	t, err := transport.New(cfg.BaseURL, o.logger, tOpts...)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		transport: t,
		logger:    o.logger,
		breaker:   o.breaker,
		waiter:    o.waiter,
		inflight:  newRegistry(),
	}
	if cfg.CacheTTL > 0 {
		c.cache = newResponseCache(cfg.CacheTTL, o.now)
	}
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Transport ...
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// Credentials returns the token store shared with the transport.
func (c *Client) Credentials() credential.Store {
	return c.transport.Credentials()
}

// Logger ...
func (c *Client) Logger() log.Logger {
	return c.logger
}

func (c *Client) retryOptions() []retry.Option {
	opts := []retry.Option{retry.WithLogger(c.logger)}
	if c.waiter != nil {
		opts = append(opts, retry.WithWaiter(c.waiter))
	}
	if c.breaker != nil {
		opts = append(opts, retry.WithBreaker(c.breaker))
	}
	return opts
}
