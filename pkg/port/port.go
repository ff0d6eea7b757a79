// Package port is a client for the subset of the Port software catalog API
// that eolsync needs: exchanging credentials for an access token, listing the
// entities of a blueprint, and patching a single property on one entity.
//
// Every method returns one of the classified errors from pkg/errors:
// AuthError for rejected or unusable credentials, TransportError for non-2xx
// answers and failed round trips, SchemaError for responses missing an
// expected field.
package port

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agentstation/eolsync/internal/transport"
	"github.com/agentstation/eolsync/pkg/errors"
)

// Config holds the connection settings for a Client.
// Token takes precedence over the client credential pair when both are set.
type Config struct {
	BaseURL      string `validate:"required,url"`
	Token        string
	ClientID     string `validate:"required_without=Token"`
	ClientSecret string `validate:"required_without=Token"`
}

// Client talks to one Port organization.
type Client struct {
	baseURL   string
	transport *transport.Client
	tokens    TokenSource
}

type clientOptions struct {
	transportOpts []transport.Option
	now           func() time.Time
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.transportOpts = append(o.transportOpts, transport.WithTimeout(d))
	}
}

// WithRoundTripper replaces the HTTP transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transportOpts = append(o.transportOpts, transport.WithRoundTripper(rt))
	}
}

// WithCircuitBreaker enables or disables failing fast after repeated errors.
func WithCircuitBreaker(enabled bool) Option {
	return func(o *clientOptions) {
		o.transportOpts = append(o.transportOpts, transport.WithCircuitBreaker(enabled))
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		o.transportOpts = append(o.transportOpts, transport.WithUserAgent(ua))
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.now = now
	}
}

var validate = validator.New()

// New validates cfg and returns a Client. No network call is made; with client
// credentials the access token is fetched lazily on first use.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, configError(err)
	}

	o := &clientOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: transport.New(&transport.BearerAuth{}, o.transportOpts...),
	}

	if cfg.Token != "" {
		c.tokens = StaticToken(cfg.Token)
	} else {
		c.tokens = &ClientCredentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			exchange:     c.exchange,
			now:          o.now,
		}
	}

	return c, nil
}

// BaseURL returns the catalog base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func configError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewConfigError("port", err.Error(), err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required when no static token is set", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a valid URL", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.NewConfigError("port", strings.Join(msgs, "; "), err)
}
