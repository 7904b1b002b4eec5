// Package auth obtains OAuth2 client-credential tokens for outbound calls.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCred caches a client-credentials token and refreshes it when it
// expires. It is safe for concurrent use.
type ClientCred struct {
	conf  clientcredentials.Config
	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{
		conf: conf.toOauth2Config(),
	}
}

// GetToken returns a valid access token, requesting a new one when the
// cached token is missing or expired.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.Valid() {
		return c.token.AccessToken, nil
	}
	if err := c.fetch(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// ForceRefresh discards the cached token and requests a new one.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

func (c *ClientCred) fetch(ctx context.Context) error {
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return nil
}

// SetAuthHeader adds the bearer token to r.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	if _, err := c.GetToken(r.Context()); err != nil {
		return err
	}
	c.mu.Lock()
	c.token.SetAuthHeader(r)
	c.mu.Unlock()
	return nil
}

// Transport wraps base so that every request carries the bearer token. A
// 401 response triggers one refresh and retry for requests without a body.
func (c *ClientCred) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{cred: c, base: base}
}

type transport struct {
	cred *ClientCred
	base http.RoundTripper
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	if err := t.cred.SetAuthHeader(req); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || r.Body != nil {
		return resp, err
	}
	_ = resp.Body.Close()
	if _, err := t.cred.ForceRefresh(r.Context()); err != nil {
		return nil, err
	}
	retry := r.Clone(r.Context())
	if err := t.cred.SetAuthHeader(retry); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(retry)
}
