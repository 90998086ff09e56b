package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *VaultClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *VaultClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetVaultConfig returns the vault configuration.
func (h *Handlers) HandleGetVaultConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetVaultConfig(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get vault config: %v", err)), nil
	}

	text, err := formatVaultConfig(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse vault config: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetBooking returns one booking.
func (h *Handlers) HandleGetBooking(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("booking_id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("booking_id must be a positive integer"), nil
	}

	raw, err := h.client.GetBooking(ctx, uint64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get booking: %v", err)), nil
	}

	var resp struct {
		Booking map[string]any `json:"booking"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Booking == nil {
		return mcp.NewToolResultError("Failed to parse booking"), nil
	}
	return mcp.NewToolResultText(formatBooking(resp.Booking)), nil
}

// HandleListBookings lists a party's bookings.
func (h *Handlers) HandleListBookings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListBookings(ctx, address, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list bookings: %v", err)), nil
	}

	text, err := formatBookingList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse bookings: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetBalance returns an account's token balance.
func (h *Handlers) HandleGetBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetBalance(ctx, req.GetString("address", ""), req.GetString("token", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Balance of %s: %s %s (base units)",
		getString(m, "address"), getString(m, "balance"), getString(m, "token"))), nil
}

// HandleGetExpertStatus returns an expert registry status.
func (h *Handlers) HandleGetExpertStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetExpertStatus(ctx, req.GetString("address", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get expert status: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse expert status: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Expert %s is %s", getString(m, "expert"), getString(m, "status"))), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func formatVaultConfig(raw json.RawMessage) (string, error) {
	var resp struct {
		Vault   map[string]any `json:"vault"`
		Custody string         `json:"custody"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Vault == nil {
		return "", fmt.Errorf("unexpected response: %s", string(raw))
	}

	var sb strings.Builder
	sb.WriteString("Vault configuration:\n")
	fmt.Fprintf(&sb, "  Admin:   %s\n", getString(resp.Vault, "admin"))
	fmt.Fprintf(&sb, "  Token:   %s\n", getString(resp.Vault, "token"))
	fmt.Fprintf(&sb, "  Oracle:  %s\n", getString(resp.Vault, "oracle"))
	fmt.Fprintf(&sb, "  Custody: %s\n", resp.Custody)
	return sb.String(), nil
}

func formatBooking(b map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking #%s (%s)\n", getString(b, "id"), getString(b, "status"))
	fmt.Fprintf(&sb, "  Payer:   %s\n", getString(b, "payer"))
	fmt.Fprintf(&sb, "  Payee:   %s\n", getString(b, "payee"))
	fmt.Fprintf(&sb, "  Rate:    %s per second\n", getString(b, "rate"))
	fmt.Fprintf(&sb, "  Booked:  %ss\n", getString(b, "bookedDuration"))
	fmt.Fprintf(&sb, "  Deposit: %s\n", getString(b, "deposit"))
	fmt.Fprintf(&sb, "  Created: %s\n", getString(b, "createdAt"))
	if v := getString(b, "actualDuration"); v != "" {
		fmt.Fprintf(&sb, "  Actual:  %ss\n", v)
	}
	if v := getString(b, "payout"); v != "" {
		fmt.Fprintf(&sb, "  Payout:  %s\n", v)
	}
	if v := getString(b, "refund"); v != "" {
		fmt.Fprintf(&sb, "  Refund:  %s\n", v)
	}
	return sb.String()
}

func formatBookingList(raw json.RawMessage) (string, error) {
	var resp struct {
		Bookings []map[string]any `json:"bookings"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Bookings) == 0 {
		return "No bookings found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d booking(s):\n\n", len(resp.Bookings))
	for i, b := range resp.Bookings {
		fmt.Fprintf(&sb, "%d. #%s %s: %s -> %s, deposit %s\n", i+1,
			getString(b, "id"), getString(b, "status"),
			getString(b, "payer"), getString(b, "payee"), getString(b, "deposit"))
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%.0f", f)
			}
		}
	}
	return ""
}
