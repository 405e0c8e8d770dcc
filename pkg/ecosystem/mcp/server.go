// Package mcp exposes the pipeline engine as an MCP tool server.
package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Built-in tool names. Registry commands are exposed under their own names
// and must not collide with these.
const (
	ToolPipeline = "pipeline"
	ToolValidate = "validate"
	ToolSchema   = "schema"
)

// stepItemSchema describes one element of the pipeline tool's steps array.
var stepItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"command": map[string]any{"type": "string", "description": "Registered command name"},
		"input":   map[string]any{"description": "Command input; strings like $prev.id or $steps.<alias>.id are references"},
		"as":      map[string]any{"type": "string", "description": "Alias later steps can reference"},
		"when":    map[string]any{"type": "object", "description": "Guard such as {\"$eq\": [\"$prev.completed\", false]}"},
	},
	"required":             []string{"command"},
	"additionalProperties": false,
}

// NewServer creates a new MCP server with the pipeline tools and one tool
// per registered command.
func NewServer(version string, h *Handlers) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		"stepwise",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool(ToolPipeline,
			mcp.WithDescription("Run a pipeline of commands in order. Each step may reference earlier outputs with $prev or $steps.<alias>."),
			mcp.WithArray("steps", mcp.Required(), mcp.Description("Ordered steps"), mcp.Items(stepItemSchema)),
			mcp.WithBoolean("continueOnFailure", mcp.Description("Keep running later steps after a failure")),
		),
		h.HandlePipeline,
	)

	s.AddTool(
		mcp.NewTool(ToolValidate,
			mcp.WithDescription("Check a pipeline without running it"),
			mcp.WithArray("steps", mcp.Required(), mcp.Description("Ordered steps"), mcp.Items(stepItemSchema)),
			mcp.WithBoolean("continueOnFailure", mcp.Description("Keep running later steps after a failure")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool(ToolSchema,
			mcp.WithDescription("Export a JSON Schema: the pipeline request, or one command's input"),
			mcp.WithString("command", mcp.Description("Command name; omit for the pipeline request schema")),
		),
		h.HandleSchema,
	)

	for _, cmd := range h.registry.Commands() {
		switch cmd.Name {
		case ToolPipeline, ToolValidate, ToolSchema:
			return nil, fmt.Errorf("command %q collides with a built-in tool", cmd.Name)
		}
		raw, _ := h.registry.InputSchema(cmd.Name)
		s.AddTool(
			mcp.NewToolWithRawSchema(cmd.Name, cmd.Description, raw),
			h.CommandHandler(cmd.Name),
		)
	}

	return s, nil
}
