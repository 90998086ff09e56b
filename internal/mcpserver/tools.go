package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the vault MCP server. Every tool is read-only; the
// descriptions are what the model reads to pick a tool.

var ToolGetVaultConfig = mcp.NewTool("get_vault_config",
	mcp.WithDescription(
		"Get the escrow vault configuration: administrator, payment token, settlement oracle "+
			"and the custody account holding escrowed deposits."),
)

var ToolGetBooking = mcp.NewTool("get_booking",
	mcp.WithDescription(
		"Get one booking by id. Shows payer, payee, per-second rate, booked duration, escrowed "+
			"deposit and status (pending, finalized or reclaimed). Settled bookings include the "+
			"actual duration, payout and refund."),
	mcp.WithNumber("booking_id",
		mcp.Required(),
		mcp.Description("The booking id (a positive integer)")),
)

var ToolListBookings = mcp.NewTool("list_bookings",
	mcp.WithDescription(
		"List bookings where an address is the payer or the payee, newest first. "+
			"Pending bookings older than 24 hours can be reclaimed by their payer."),
	mcp.WithString("address",
		mcp.Description("Party address (e.g. '0x1234...'). Defaults to the configured address.")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of bookings to return (default 20)")),
)

var ToolGetBalance = mcp.NewTool("get_balance",
	mcp.WithDescription(
		"Get an address's token balance in base units. Uses the vault's payment token unless one is given."),
	mcp.WithString("address",
		mcp.Description("Account address (e.g. '0x1234...'). Defaults to the configured address.")),
	mcp.WithString("token",
		mcp.Description("Token identifier. Defaults to the vault's payment token.")),
)

var ToolGetExpertStatus = mcp.NewTool("get_expert_status",
	mcp.WithDescription(
		"Get an address's status in the expert registry: unverified, verified or banned."),
	mcp.WithString("address",
		mcp.Description("Expert address (e.g. '0x1234...'). Defaults to the configured address.")),
)
