package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for connecting to the vault API.
type Config struct {
	APIURL         string // Base URL, e.g. "http://localhost:8080"
	DefaultAddress string // Address used when a tool call omits one
}

// VaultClient is a read-only HTTP client for the vault API.
type VaultClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewVaultClient creates a new client for the vault API.
func NewVaultClient(cfg Config) *VaultClient {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &VaultClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// get makes a GET request and returns the response body.
func (c *VaultClient) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d %s): %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// address picks addr or the configured default.
func (c *VaultClient) address(addr string) (string, error) {
	if addr == "" {
		addr = c.cfg.DefaultAddress
	}
	if addr == "" {
		return "", fmt.Errorf("address is required")
	}
	return addr, nil
}

// GetVaultConfig returns the vault's admin, token, oracle and custody account.
func (c *VaultClient) GetVaultConfig(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/v1/vault", nil)
}

// GetBooking returns one booking.
func (c *VaultClient) GetBooking(ctx context.Context, id uint64) (json.RawMessage, error) {
	return c.get(ctx, "/v1/bookings/"+strconv.FormatUint(id, 10), nil)
}

// ListBookings returns bookings where addr is payer or payee.
func (c *VaultClient) ListBookings(ctx context.Context, addr string, limit int) (json.RawMessage, error) {
	addr, err := c.address(addr)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "/v1/agents/"+url.PathEscape(addr)+"/bookings", q)
}

// GetBalance returns addr's balance in token, or in the vault token when
// token is empty.
func (c *VaultClient) GetBalance(ctx context.Context, addr, token string) (json.RawMessage, error) {
	addr, err := c.address(addr)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	return c.get(ctx, "/v1/balances/"+url.PathEscape(addr), q)
}

// GetExpertStatus returns an address's expert registry status.
func (c *VaultClient) GetExpertStatus(ctx context.Context, addr string) (json.RawMessage, error) {
	addr, err := c.address(addr)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "/v1/experts/"+url.PathEscape(addr), nil)
}
