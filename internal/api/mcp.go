package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fansoftheone/engine/internal/artifact"
	"github.com/fansoftheone/engine/internal/token"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Artifacts *artifact.Service
	Tokens    *token.Service
	Version   string
	// BaseURL is the public HTTP address used to build download links.
	// When empty, only the token is returned.
	BaseURL string
}

// NewMCPServer creates an MCP server exposing convert, lookup and export
// token tools backed by the same services as the HTTP API.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"fote-engine",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(artifact.Brand+" engine: turn free text into a structured plan artifact and export it as a zip bundle."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("convert",
			mcp.WithDescription("Convert free text into a stored artifact with a summary and execution plan."),
			mcp.WithString("raw_input", mcp.Description("Free-text input, up to 20000 characters"), mcp.Required()),
			mcp.WithString("mode", mcp.Description("Caller-chosen category, up to 64 characters"), mcp.Required()),
		),
		mcpConvert(deps),
	)

	s.AddTool(
		mcp.NewTool("get_artifact",
			mcp.WithDescription("Fetch a stored artifact by id."),
			mcp.WithString("id", mcp.Description("Artifact id"), mcp.Required()),
		),
		mcpGetArtifact(deps),
	)

	s.AddTool(
		mcp.NewTool("create_export_token",
			mcp.WithDescription("Create a single-use download token for an artifact's zip bundle."),
			mcp.WithString("artifact_id", mcp.Description("Artifact id"), mcp.Required()),
			mcp.WithNumber("ttl_seconds", mcp.Description("Token lifetime in seconds, 30-3600 (default 300)")),
		),
		mcpCreateExportToken(deps),
	)

	return s
}

func mcpConvert(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawInput, err := req.RequireString("raw_input")
		if err != nil {
			return mcpError("raw_input is required"), nil
		}
		mode, err := req.RequireString("mode")
		if err != nil {
			return mcpError("mode is required"), nil
		}

		a, err := deps.Artifacts.Convert(ctx, rawInput, mode)
		if err != nil {
			return mcpServiceError(err), nil
		}
		return mcpJSON(convertResponse{
			ID:               a.ID,
			Brand:            a.Brand,
			StructuredOutput: a.StructuredOutput,
		})
	}
}

func mcpGetArtifact(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		a, err := deps.Artifacts.Get(ctx, id)
		if err != nil {
			return mcpServiceError(err), nil
		}
		return mcpJSON(a)
	}
}

func mcpCreateExportToken(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		artifactID, err := req.RequireString("artifact_id")
		if err != nil {
			return mcpError("artifact_id is required"), nil
		}
		ttl := req.GetInt("ttl_seconds", token.DefaultTTLSeconds)

		tok, err := deps.Tokens.Issue(ctx, artifactID, ttl)
		if err != nil {
			return mcpServiceError(err), nil
		}

		out := map[string]string{
			"token":      tok.Token,
			"expires_at": artifact.FormatTimestamp(tok.ExpiresAt),
		}
		if deps.BaseURL != "" {
			out["download_url"] = strings.TrimRight(deps.BaseURL, "/") + "/engine/download/" + tok.Token
		}
		return mcpJSON(out)
	}
}

func mcpServiceError(err error) *mcp.CallToolResult {
	var ve *artifact.ValidationError
	switch {
	case errors.As(err, &ve):
		return mcpError(ve.Error())
	case errors.Is(err, artifact.ErrNotFound):
		return mcpError("artifact not found")
	default:
		slog.Error("mcp tool failed", "error", err)
		return mcpError("internal error")
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcpText(string(data)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
