// Package transport provides the HTTP plumbing used by the catalog client:
// an HTTP/2-capable client behind a circuit breaker, credential application,
// common headers, and decoding of responses into classified errors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/http2"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with authentication.
type Client struct {
	http      *http.Client
	auth      Authenticator
	breaker   *breakerTransport
	userAgent string
}

type options struct {
	timeout          time.Duration
	base             http.RoundTripper
	breaker          bool
	breakerThreshold uint32
	userAgent        string
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRoundTripper replaces the base transport, mostly for tests.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// WithCircuitBreaker enables or disables the circuit breaker.
func WithCircuitBreaker(enabled bool) Option {
	return func(o *options) {
		o.breaker = enabled
	}
}

// WithBreakerThreshold sets how many consecutive failures open the breaker.
func WithBreakerThreshold(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.breakerThreshold = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// New creates a new transport client with the specified authenticator.
func New(auth Authenticator, opts ...Option) *Client {
	o := &options{
		timeout:          DefaultHTTPTimeout,
		breaker:          true,
		breakerThreshold: constants.BreakerFailureThreshold,
		userAgent:        constants.UserAgentPrefix + "dev",
	}
	for _, opt := range opts {
		opt(o)
	}

	if auth == nil {
		auth = &NoAuth{}
	}

	base := o.base
	if base == nil {
		base = newHTTPTransport()
	}

	c := &Client{auth: auth, userAgent: o.userAgent}
	rt := base
	if o.breaker {
		c.breaker = newBreakerTransport(base, o.breakerThreshold)
		rt = c.breaker
	}
	c.http = &http.Client{Timeout: o.timeout, Transport: rt}
	return c
}

// newHTTPTransport returns a pooled transport that negotiates HTTP/2 over TLS.
func newHTTPTransport() *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   constants.DialTimeout,
			KeepAlive: constants.KeepAliveInterval,
		}).DialContext,
		MaxIdleConns:          constants.MaxIdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		// HTTP/1.1 keeps working; only h2 negotiation is lost.
		logging.Debug().Err(err).Msg("HTTP/2 not configured")
	}
	return t
}

// BreakerState reports the circuit breaker state, or StateClosed when disabled.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// DoWithContext performs an HTTP request with the credential and common headers applied.
// Round-trip failures are returned as TransportError.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request, credential string) (*http.Response, error) {
	req = req.WithContext(ctx)
	c.auth.Apply(req, credential)

	req.Header.Set("Accept", "application/json")
	if req.Body != nil && req.Body != http.NoBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if runID := logging.RunID(ctx); runID != "" {
		req.Header.Set("X-Request-Id", runID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapTransport(req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// NewJSONRequest builds a request whose body is the JSON encoding of body.
// A nil body produces a request without one.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var buf *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &errors.UnexpectedError{Operation: "encode " + method + " body", Err: err}
		}
		buf = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if buf != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, buf)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, &errors.UnexpectedError{Operation: "create " + method + " request", Err: err}
	}
	return req, nil
}
