// Package mcp adapts the quotad API to the Model Context Protocol so
// agents can check their own quota before burning it.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quotalab/quotad/pkg/client"
)

// Server adapts quotad to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance talking to the daemon at
// apiURL.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"quotad",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// quotad://quotas
	s.mcpServer.AddResource(mcp.NewResource(
		"quotad://quotas",
		"Current Quota Status",
		mcp.WithResourceDescription("Latest quota aggregates for every configured account"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadQuotas)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"list_accounts",
		mcp.WithDescription("List the configured provider accounts (credentials redacted)."),
	), s.handleListAccounts)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_quota",
		mcp.WithDescription("Get the latest quota status for one account: usage, remaining, and the (possibly predicted) reset time."),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("The account to look up")),
	), s.handleGetQuota)

	s.mcpServer.AddTool(mcp.NewTool(
		"refresh_quotas",
		mcp.WithDescription("Trigger an immediate fetch of all accounts. No-op when a fetch is already running."),
	), s.handleRefreshQuotas)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"quota-aware",
		mcp.WithPromptDescription("Provides context about quotad concepts (accounts, cycles, estimated resets)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadQuotas(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	result, err := s.apiClient.GetQuotas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotas: %w", err)
	}

	data, err := json.MarshalIndent(result.Quotas, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quotas: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleListAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accounts, err := s.apiClient.GetAccounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetQuota(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := mcp.ParseString(request, "account_id", "")
	if accountID == "" {
		return mcp.NewToolResultError("account_id is required"), nil
	}

	quota, err := s.apiClient.GetQuota(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(formatQuota(quota)), nil
}

func (s *Server) handleRefreshQuotas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.apiClient.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if result.Started() {
		return mcp.NewToolResultText("Refresh started."), nil
	}
	return mcp.NewToolResultText("A refresh is already running."), nil
}

// formatQuota renders one aggregate as compact human-readable text.
func formatQuota(q client.Quota) string {
	if q.Error != "" {
		return fmt.Sprintf("Account %s (%s): fetch failed: %s", q.AccountID, q.Provider, q.Error)
	}

	out := fmt.Sprintf("Account %s (%s", q.AccountID, q.Provider)
	if q.Plan != "" {
		out += ", plan " + q.Plan
	}
	out += ")\n"
	out += "Primary: " + formatCycle(q.Primary)
	if q.Secondary.Used != nil || q.Secondary.Remaining != nil || q.Secondary.Total != nil || q.Secondary.ResetAt != nil {
		out += "\nSecondary: " + formatCycle(q.Secondary)
	}
	return out
}

func formatCycle(c client.CycleStatus) string {
	out := fmt.Sprintf("%.1f%% used", c.UsagePercent)
	if !c.PercentOnly && c.Remaining != nil && c.Total != nil {
		out += fmt.Sprintf(" (%.0f of %.0f remaining)", *c.Remaining, *c.Total)
	}
	if c.ResetAt != nil {
		out += ", resets " + c.ResetAt.UTC().Format(time.RFC3339)
		if c.ResetEstimated {
			out += " (estimated)"
		}
	}
	return out
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "quota-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with quotad, a daemon that tracks AI-subscription
quota across provider accounts.

Concepts:
- Account: one configured provider login (anthropic, openai, zai, kiro, cursor, copilot).
- Primary/Secondary cycle: up to two quota windows per account (e.g. a 5-hour and a 7-day window).
- Estimated reset: when a provider does not report its reset time, quotad predicts it
  from previously observed resets; such times are marked estimated.

Before starting expensive work, use 'get_quota' to check how much quota the relevant
account has left and when it resets. Use 'refresh_quotas' if the data looks stale.
If usage is near 100%, prefer deferring work until after the reset time.
`

	return mcp.NewGetPromptResult(
		"quota-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
