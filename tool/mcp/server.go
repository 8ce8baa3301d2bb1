// Package mcp exposes the travel lookup tools as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/tool"
)

// ServerName is advertised to MCP clients.
const ServerName = "travel-router"

// NewServer builds an MCP server with one MCP tool per lookup in registry.
// Tools missing from registry are not exposed.
func NewServer(registry *tool.Registry, version string, logger *slog.Logger) *sdkmcp.Server {
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    ServerName,
		Version: version,
		Title:   "Travel policy lookups",
	}, nil)

	add[tool.VisaParams](server, registry, tool.VisaTool, logger)
	add[tool.PerDiemParams](server, registry, tool.PerDiemTool, logger)
	add[tool.FlightParams](server, registry, tool.FlightTool, logger)
	add[tool.ApprovalParams](server, registry, tool.ApprovalTool, logger)
	return server
}

// Serve runs server over stdio until ctx is cancelled or the client disconnects.
func Serve(ctx context.Context, server *sdkmcp.Server) error {
	return server.Run(ctx, &sdkmcp.StdioTransport{})
}

func add[P tool.Params](server *sdkmcp.Server, registry *tool.Registry, name string, logger *slog.Logger) {
	t, err := registry.Get(name)
	if err != nil {
		logger.Warn("tool not registered, skipping", "tool", name)
		return
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        t.Name,
		Description: t.Description,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in P) (*sdkmcp.CallToolResult, any, error) {
		p, err := tool.Check(in)
		if err != nil {
			return nil, nil, err
		}
		res, err := t.Execute(ctx, p)
		if err != nil {
			logger.Warn("mcp tool call failed", "tool", name, "error", err)
			return nil, nil, err
		}
		body, err := json.Marshal(res)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		logger.Info("mcp tool call", "tool", name, "source", res.Source)
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{
				&sdkmcp.TextContent{Text: string(body)},
			},
		}, nil, nil
	})
}
