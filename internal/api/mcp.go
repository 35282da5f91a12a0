package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/workspace"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Workspace *workspace.Service
	Version   string
}

// NewMCPServer creates an MCP server exposing portfolio editing tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"folio",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("folio: read and edit portfolio documents with natural-language instructions or explicit edit actions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_portfolio",
			mcp.WithDescription("Return the latest revision of a portfolio as JSON."),
			mcp.WithString("portfolio_id", mcp.Description("Portfolio id"), mcp.Required()),
		),
		mcpGetPortfolio(deps),
	)

	s.AddTool(
		mcp.NewTool("edit_portfolio",
			mcp.WithDescription("Apply a natural-language edit instruction to a portfolio and save the result."),
			mcp.WithString("portfolio_id", mcp.Description("Portfolio id"), mcp.Required()),
			mcp.WithString("instruction", mcp.Description("What to change, e.g. \"move skills above about\""), mcp.Required()),
			mcp.WithString("role", mcp.Description("Owner's profession, used as a hint")),
		),
		mcpEditPortfolio(deps),
	)

	s.AddTool(
		mcp.NewTool("apply_actions",
			mcp.WithDescription("Apply an explicit list of edit actions ({type, payload} objects) to a portfolio."),
			mcp.WithString("portfolio_id", mcp.Description("Portfolio id"), mcp.Required()),
			mcp.WithString("actions", mcp.Description("JSON array of {type, payload} action objects"), mcp.Required()),
			mcp.WithBoolean("atomic", mcp.Description("Discard every change if any action fails")),
		),
		mcpApplyActions(deps),
	)

	s.AddTool(
		mcp.NewTool("undo_edit",
			mcp.WithDescription("Revert the most recent change to a portfolio."),
			mcp.WithString("portfolio_id", mcp.Description("Portfolio id"), mcp.Required()),
		),
		mcpUndo(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"folio://portfolios/recent",
			"Recent Portfolios",
			mcp.WithResourceDescription("The 10 most recently updated portfolios (id, name, revision, headline)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpGetPortfolio(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("portfolio_id")
		if err != nil {
			return mcp.NewToolResultError("portfolio_id is required"), nil
		}
		p, err := deps.Workspace.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading portfolio: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

// editSummary is the compact result returned to MCP clients.
type editSummary struct {
	Revision  int      `json:"revision"`
	Persisted bool     `json:"persisted"`
	Success   bool     `json:"success"`
	Summary   string   `json:"summary,omitempty"`
	Changed   []string `json:"changed"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func summarize(out workspace.Outcome) editSummary {
	s := editSummary{
		Revision:  out.Portfolio.Revision,
		Persisted: out.Persisted,
		Success:   out.Result.Success,
		Summary:   out.Result.Plan.Summary,
		Changed:   []string{},
		Errors:    out.Result.Errors,
		Warnings:  out.Result.Warnings,
	}
	for _, c := range out.Changes {
		s.Changed = append(s.Changed, c.Path)
	}
	return s
}

func mcpEditPortfolio(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("portfolio_id")
		if err != nil {
			return mcp.NewToolResultError("portfolio_id is required"), nil
		}
		instruction, err := req.RequireString("instruction")
		if err != nil {
			return mcp.NewToolResultError("instruction is required"), nil
		}

		out, err := deps.Workspace.Edit(ctx, workspace.EditRequest{
			PortfolioID: id,
			Instruction: instruction,
			Role:        req.GetString("role", ""),
		})
		if err != nil {
			var ge *planner.GenerationError
			if errors.As(err, &ge) && ge.Retryable {
				return mcp.NewToolResultError(fmt.Sprintf("edit failed (%s), try again shortly: %v", ge.Reason, err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("edit failed: %v", err)), nil
		}
		return mcpJSON(summarize(out))
	}
}

func mcpApplyActions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("portfolio_id")
		if err != nil {
			return mcp.NewToolResultError("portfolio_id is required"), nil
		}
		raw, err := req.RequireString("actions")
		if err != nil {
			return mcp.NewToolResultError("actions is required"), nil
		}

		var actions action.List
		if err := json.Unmarshal([]byte(raw), &actions); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid actions JSON: %v", err)), nil
		}

		plan := action.Plan{Summary: "applied via MCP", Confidence: action.ConfidenceHigh, Actions: actions}
		out, err := deps.Workspace.ApplyPlan(ctx, id, plan, req.GetBool("atomic", false), 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("applying actions: %v", err)), nil
		}
		res, err := mcpJSON(summarize(out))
		if res != nil && !out.Result.Success {
			res.IsError = true
		}
		return res, err
	}
}

func mcpUndo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("portfolio_id")
		if err != nil {
			return mcp.NewToolResultError("portfolio_id is required"), nil
		}
		p, err := deps.Workspace.Undo(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("undo failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Portfolio %s restored, now at revision %d", p.ID, p.Revision)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Workspace.List(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list portfolios: %w", err)
		}

		type portfolioSummary struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Revision  int    `json:"revision"`
			Headline  string `json:"headline,omitempty"`
			UpdatedAt string `json:"updated_at"`
		}

		summaries := make([]portfolioSummary, len(list))
		for i, p := range list {
			headline := p.Document.HeroTitle
			if utf8.RuneCountInString(headline) > 120 {
				headline = string([]rune(headline)[:120]) + "..."
			}
			summaries[i] = portfolioSummary{
				ID:        p.ID,
				Name:      p.Name,
				Revision:  p.Revision,
				Headline:  headline,
				UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal portfolios: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
