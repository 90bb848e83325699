package githubapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/branchguard/branchguard/internal/config"
)

// Client is a GitHub API client authenticating as a GitHub App installed in
// a single organization. Construct it once with New and pass it by
// reference into every request handler; it is safe for concurrent use.
type Client struct {
	baseURL      *url.URL
	organization string
	auth         *AppAuth
	transport    *retryingTransport
	tokens       *tokenManager
	logger       *slog.Logger
}

// New builds a Client from configuration and obtains the initial
// installation access token. Any failure here is fatal: without key
// material and a token the service must not start.
//
// Pass nil for httpClient to use a default one.
func New(ctx context.Context, cfg config.GitHubAPIConfig, httpClient Doer, logger *slog.Logger) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}

	auth, err := LoadAppAuth(cfg.AppID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		baseURL:      baseURL,
		organization: cfg.Organization,
		auth:         auth,
		transport:    newRetryingTransport(httpClient, DefaultRetryPolicy()),
		logger:       logger,
	}
	c.tokens = newTokenManager(c.bootstrapToken)

	tok, err := c.bootstrapToken(ctx)
	if err != nil {
		return nil, err
	}
	c.tokens.set(tok)

	return c, nil
}

// bootstrapToken mints a fresh App JWT and exchanges it for an installation
// access token in two API calls: look up the installation for the
// configured organization, then create a token for that installation.
func (c *Client) bootstrapToken(ctx context.Context) (InstallationToken, error) {
	c.logger.Info("requesting github app installation access token", "organization", c.organization)

	appJWT, err := c.auth.MintJWT(time.Now())
	if err != nil {
		return "", &BootstrapError{Err: err}
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	endpoint := fmt.Sprintf("orgs/%s/installation", c.organization)
	if err := c.call(ctx, http.MethodGet, endpoint, appJWT, nil, &installation); err != nil {
		return "", &BootstrapError{Err: err}
	}

	var token struct {
		Token string `json:"token"`
	}
	endpoint = fmt.Sprintf("app/installations/%d/access_tokens", installation.ID)
	if err := c.call(ctx, http.MethodPost, endpoint, appJWT, nil, &token); err != nil {
		return "", &BootstrapError{Err: err}
	}

	c.logger.Info("obtained installation access token", "organization", c.organization)
	return InstallationToken(token.Token), nil
}

// Request makes an authenticated HTTP request to the GitHub API and decodes
// the JSON response into out (which may be nil to discard it).
//
// endpoint is relative to the base URL, without a leading slash, e.g.
// "repos/acme/widgets/issues".
//
// A 401 response triggers exactly one token refresh and one retried
// attempt; a second 401 is returned as a ClientError so a misbehaving API
// cannot trap the client in a refresh loop.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any) error {
	observed := c.tokens.current()

	err := c.call(ctx, method, endpoint, string(observed), body, out)
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	// The token might already have been refreshed by a concurrent request
	// since we read it; refreshIfCurrent sorts that out.
	c.logger.Info("installation access token has possibly expired")
	tok, err := c.tokens.refreshIfCurrent(ctx, observed)
	if err != nil {
		return err
	}

	return c.call(ctx, method, endpoint, string(tok), body, out)
}

// call performs a single classified exchange through the retrying
// transport.
func (c *Client) call(ctx context.Context, method, endpoint, bearer string, body, out any) error {
	target, err := c.baseURL.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint url %q: %w", endpoint, err)
	}

	status, respBody, err := c.transport.execute(ctx, method, target.String(), bearer, body)
	if err != nil {
		return err
	}

	switch {
	case status >= 400 && status < 500:
		return &ClientError{StatusCode: status, URL: target.String(), Body: string(respBody)}
	case status >= 500:
		return &ServerError{StatusCode: status, URL: target.String()}
	}

	if out == nil {
		return nil
	}

	// An absent body is a valid "no additional data" response, but empty
	// bytes are not valid JSON.
	if len(respBody) == 0 {
		respBody = []byte("{}")
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// Get makes an authenticated GET request (see Request).
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, http.MethodGet, endpoint, nil, out)
}

// Head makes an authenticated HEAD request (see Request).
func (c *Client) Head(ctx context.Context, endpoint string) error {
	return c.Request(ctx, http.MethodHead, endpoint, nil, nil)
}

// Delete makes an authenticated DELETE request (see Request).
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, http.MethodDelete, endpoint, nil, out)
}

// Patch makes an authenticated PATCH request (see Request).
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPatch, endpoint, body, out)
}

// Post makes an authenticated POST request (see Request).
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPost, endpoint, body, out)
}

// Put makes an authenticated PUT request (see Request).
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, http.MethodPut, endpoint, body, out)
}
