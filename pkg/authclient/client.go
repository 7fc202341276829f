// Package authclient calls the apirest auth endpoints from another Go service.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient takes the API root, e.g. "http://apirest:8080/api/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Tokens mirrors the login and refresh response. RefreshToken is nil when
// the server has refresh disabled.
type Tokens struct {
	AccessToken  string  `json:"accessToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	RefreshToken *string `json:"refreshToken"`
}

type Revocation struct {
	Username     string `json:"username"`
	TokenVersion int    `json:"tokenVersion"`
}

// APIError is a non-2xx answer decoded from the server's error body.
type APIError struct {
	Status    int    `json:"code"`
	Message   string `json:"error"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apirest: %d %s", e.Status, e.Message)
}

func (c *Client) Login(ctx context.Context, username, password string) (*Tokens, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}

	var out Tokens
	if err := c.do(ctx, "/auth/login", "application/json", "", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh sends the refresh token as the raw request body.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, "/auth/refresh", "text/plain", "", strings.NewReader(refreshToken), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LogoutAll(ctx context.Context, accessToken string) (*Revocation, error) {
	var out Revocation
	if err := c.do(ctx, "/me/logout-all", "", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, path, contentType, bearer string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		// a body that is not the error shape still yields the status
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
