// Package nursery is a typed client for the plant-nursery application API.
package nursery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/version"
)

// Client talks to the nursery API. It is safe for concurrent use; per-scenario
// state such as tokens and the last response lives in the caller.
type Client struct {
	env  *config.Env
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API described by env.
func New(env *config.Env, opts ...Option) *Client {
	c := &Client{
		env: env,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Env returns the settings the client was built from.
func (c *Client) Env() *config.Env { return c.env }

// Do sends a request to path (relative to the API base URL). A non-nil body
// is sent as-is when it is []byte and JSON-encoded otherwise. An empty token
// sends no Authorization header.
func (c *Client) Do(ctx context.Context, method, path, token string, body any) (*Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.env.APIURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s %s: %w", method, path, err)
	}

	r := &Response{
		Method:   method,
		Path:     path,
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     data,
		Duration: time.Since(start),
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", r.Status).
		Dur("duration", r.Duration).
		Msg("api request")

	return r, nil
}

// Get is shorthand for Do with GET and no body.
func (c *Client) Get(ctx context.Context, path, token string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, token, nil)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, *Response, error) {
	resp, err := c.Do(ctx, http.MethodPost, c.env.Endpoints.Login, "", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", nil, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return "", resp, err
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := resp.JSON(&body); err != nil {
		return "", resp, err
	}
	if body.Token == "" {
		return "", resp, fmt.Errorf("login for %q returned no token", username)
	}
	return body.Token, resp, nil
}

// LoginAs logs in with the configured credentials for role.
func (c *Client) LoginAs(ctx context.Context, role string) (string, error) {
	cred, err := c.env.Credential(role)
	if err != nil {
		return "", err
	}
	token, _, err := c.Login(ctx, cred.Username, cred.Password)
	if err != nil {
		return "", fmt.Errorf("logging in as %s: %w", role, err)
	}
	return token, nil
}

// Logout invalidates token.
func (c *Client) Logout(ctx context.Context, token string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, c.env.Endpoints.Logout, token, nil)
}

// Health calls the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) (*Response, error) {
	return c.Get(ctx, c.env.Endpoints.Health, "")
}

func joinPath(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
