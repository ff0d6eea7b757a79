package port

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agentstation/eolsync/internal/transport"
	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
)

// Auth methods reported in AuthError.Method.
const (
	MethodStaticToken       = "static_token"
	MethodClientCredentials = "client_credentials"
)

// TokenSource yields the bearer token attached to catalog requests.
type TokenSource interface {
	// Token returns a usable token, obtaining one if needed.
	Token(ctx context.Context) (string, error)
	// Invalidate drops a cached token after the catalog rejected it.
	// It reports whether a fresh token can be obtained.
	Invalidate() bool
	// Method names the credential kind for diagnostics.
	Method() string
}

// StaticToken is a long-lived bearer token supplied directly.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.NewAuthError(MethodStaticToken, "token is empty", nil)
	}
	return string(s), nil
}

// Invalidate implements TokenSource. A static token cannot be renewed.
func (s StaticToken) Invalidate() bool { return false }

// Method implements TokenSource.
func (s StaticToken) Method() string { return MethodStaticToken }

// accessToken is a token together with the instant it stops being usable.
type accessToken struct {
	value     string
	expiresAt time.Time
}

func (t *accessToken) valid(now time.Time) bool {
	return t != nil && t.value != "" && now.Add(constants.TokenExpirySkew).Before(t.expiresAt)
}

// ClientCredentials trades a client id and secret for short-lived access
// tokens. The first token is fetched on first use and cached until it
// expires or the catalog rejects it.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string

	exchange func(ctx context.Context, id, secret string) (string, time.Duration, error)
	now      func() time.Time

	mu      sync.Mutex
	current *accessToken
}

// Token implements TokenSource.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.valid(c.now()) {
		return c.current.value, nil
	}

	value, lifetime, err := c.exchange(ctx, c.ClientID, c.ClientSecret)
	if err != nil {
		return "", err
	}
	tok := &accessToken{value: value, expiresAt: c.now().Add(lifetime)}
	c.current = tok
	logging.FromContext(ctx).Debug().
		Time("expires_at", tok.expiresAt).
		Msg("Obtained access token")
	return tok.value, nil
}

// Invalidate implements TokenSource.
func (c *ClientCredentials) Invalidate() bool {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	return true
}

// Method implements TokenSource.
func (c *ClientCredentials) Method() string { return MethodClientCredentials }

type accessTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}

// exchange posts the credential pair to the access token endpoint and returns
// the token with its lifetime.
func (c *Client) exchange(ctx context.Context, id, secret string) (string, time.Duration, error) {
	body := accessTokenRequest{ClientID: id, ClientSecret: secret}
	req, err := transport.NewJSONRequest(ctx, http.MethodPost, c.baseURL+constants.AccessTokenPath, body)
	if err != nil {
		return "", 0, err
	}

	resp, err := c.transport.DoWithContext(ctx, req, "")
	if err != nil {
		return "", 0, errors.NewAuthError(MethodClientCredentials, "token request failed", err)
	}

	var out accessTokenResponse
	if err := transport.DecodeResponse(resp, &out); err != nil {
		ae := errors.NewAuthError(MethodClientCredentials, "credential exchange rejected", err)
		var te *errors.TransportError
		if errors.As(err, &te) {
			ae.StatusCode = te.StatusCode
			ae.Message = te.Message
		}
		return "", 0, ae
	}
	if out.AccessToken == "" {
		return "", 0, errors.NewAuthError(MethodClientCredentials, "response has no accessToken", nil)
	}

	lifetime := constants.DefaultTokenLifetime
	if out.ExpiresIn > 0 {
		lifetime = time.Duration(out.ExpiresIn) * time.Second
	}
	return out.AccessToken, lifetime, nil
}

// Authenticate returns a usable bearer token, exchanging credentials if the
// client was configured with a client id and secret.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}
