// Package transport is the HTTP client the polling scheduler fetches through.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
)

// Client performs JSON GETs against the dashboard server.
type Client struct {
	base *url.URL
	http *http.Client
	auth Authenticator
}

// New creates a client rooted at baseURL.
func New(baseURL string, auth Authenticator) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.WrapValidation("base_url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("base_url", baseURL, "base url must use http or https")
	}
	if auth == nil {
		auth = NoAuth{}
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: constants.FetchTimeout},
		auth: auth,
	}, nil
}

// WithTimeout sets the overall deadline of each request.
func (c *Client) WithTimeout(d time.Duration) *Client {
	hc := *c.http
	hc.Timeout = d
	c.http = &hc
	return c
}

// Timeout returns the request deadline of the underlying http.Client.
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Resolve joins path onto the base URL.
func (c *Client) Resolve(path string) string {
	ref := &url.URL{Path: path}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		ref = &url.URL{Path: path[:i], RawQuery: path[i+1:]}
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String()
}

// Get issues a GET for path with credentials applied.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	target := c.Resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", "GET "+target, err)
	}
	req.Header.Set("Accept", "application/json")
	c.auth.Apply(req)
	return c.http.Do(req)
}

// Fetch GETs path and returns the raw JSON body of an OK response.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return ReadBody(resp, path)
}
