// Package tools registers the engine's MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/services"
)

// Deps contains dependencies for the engine tools.
type Deps struct {
	Queries services.QueryService
	Catalog *catalog.Catalog
	Logger  *zap.Logger
}

// Register registers every engine tool on the server.
func Register(s *server.MCPServer, deps *Deps) {
	registerQueryTool(s, deps)
	registerListTablesTool(s, deps)
	registerTableSchemaTool(s, deps)
}

func registerQueryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"query",
		mcp.WithDescription(
			"Answer a natural-language question about surgical sales, inventory, "+
				"and accounts payable data. Generates SQL, validates it against the "+
				"warehouse, executes it, and returns formatted rows.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer, in plain English"),
		),
		mcp.WithString(
			"mode",
			mcp.Description("Pipeline mode: chat (default), research (wider schema retrieval), or direct (no conversation context)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}

		mode := models.QueryMode(req.GetString("mode", string(models.ModeDirect)))
		if !mode.Valid() {
			return nil, fmt.Errorf("unknown mode %q", mode)
		}

		resp, err := deps.Queries.Query(ctx, services.QueryRequest{
			Question: question,
			Mode:     mode,
		})
		if err != nil {
			if resp != nil && resp.Resolution != nil {
				jsonResult, marshalErr := json.Marshal(resp)
				if marshalErr != nil {
					return nil, marshalErr
				}
				return mcp.NewToolResultText(string(jsonResult)), nil
			}
			return nil, err
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerListTablesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("List the warehouse tables available for querying."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonResult, err := json.Marshal(map[string]any{
			"tables": deps.Catalog.ListTables(),
		})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerTableSchemaTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_table_schema",
		mcp.WithDescription("Get the column-level schema for one warehouse table."),
		mcp.WithString(
			"table",
			mcp.Required(),
			mcp.Description("Table name as returned by list_tables"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return nil, err
		}

		desc, err := deps.Catalog.Describe(table)
		if err != nil {
			return nil, err
		}

		jsonResult, err := json.Marshal(desc)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
