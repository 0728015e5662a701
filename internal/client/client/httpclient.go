package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
)

var _ Client = (*HTTPClient)(nil)

type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

type tokenResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPClient returns a client for the API rooted at baseURL
// (e.g. "http://127.0.0.1:8080"). timeout bounds every request.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", baseURL)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

// LoggedIn reports whether a token pair is held.
func (c *HTTPClient) LoggedIn() bool {
	access, refresh := c.tokens()
	return access != "" || refresh != ""
}

// Close forgets the held tokens without contacting the server.
func (c *HTTPClient) Close() error {
	c.setTokens("", "")
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, email string, password []byte, firstName, lastName string) (*User, error) {
	in := map[string]string{
		"email":      email,
		"password":   string(password),
		"first_name": firstName,
		"last_name":  lastName,
	}
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", in, &out); err != nil {
		return nil, err
	}
	c.setTokens(out.AccessToken, out.RefreshToken)
	return out.User, nil
}

func (c *HTTPClient) Login(ctx context.Context, email string, password []byte) (*User, error) {
	in := map[string]string{"email": email, "password": string(password)}
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", in, &out); err != nil {
		return nil, err
	}
	c.setTokens(out.AccessToken, out.RefreshToken)
	return out.User, nil
}

// Refresh exchanges the held refresh token for a new pair. If the server
// rejects the refresh token the held pair is dropped.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh}, &out)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.setTokens("", "")
		}
		return err
	}
	c.setTokens(out.AccessToken, out.RefreshToken)
	return nil
}

// Logout revokes the current access token and forgets the held pair.
func (c *HTTPClient) Logout(ctx context.Context) (bool, error) {
	var out struct {
		Revoked bool `json:"revoked"`
	}
	if err := c.authed(ctx, http.MethodPost, "/auth/logout", &out); err != nil {
		return false, err
	}
	c.setTokens("", "")
	return out.Revoked, nil
}

// LogoutAll revokes every token of the user and forgets the held pair.
func (c *HTTPClient) LogoutAll(ctx context.Context) (int64, error) {
	var out struct {
		RevokedCount int64 `json:"revoked_count"`
	}
	if err := c.authed(ctx, http.MethodPost, "/auth/logout-all", &out); err != nil {
		return 0, err
	}
	c.setTokens("", "")
	return out.RevokedCount, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if err := c.authed(ctx, http.MethodGet, "/auth/me", &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *HTTPClient) Sessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.authed(ctx, http.MethodGet, "/auth/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Ping checks that the server is up and its database reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", "", nil, nil)
}

// authed performs a request with the access token and, when the server
// answers token_expired, refreshes once and retries.
func (c *HTTPClient) authed(ctx context.Context, method, path string, out any) error {
	access, _ := c.tokens()
	if access == "" {
		return ErrNotLoggedIn
	}

	err := c.do(ctx, method, path, access, nil, out)
	if !IsCode(err, CodeTokenExpired) {
		return err
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	access, _ = c.tokens()
	return c.do(ctx, method, path, access, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er errorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
