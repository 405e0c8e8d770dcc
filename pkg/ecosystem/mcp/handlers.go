package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Executor runs a pipeline. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *schema.PipelineRequest) (*schema.PipelineResult, error)
}

// Handlers implements the MCP tools over an engine and its registry.
type Handlers struct {
	engine   Executor
	registry *registry.Registry
}

// NewHandlers returns handlers that run pipelines on eng. reg must be the
// registry eng resolves commands from.
func NewHandlers(eng Executor, reg *registry.Registry) *Handlers {
	return &Handlers{engine: eng, registry: reg}
}

// HandlePipeline implements the pipeline MCP tool.
func (h *Handlers) HandlePipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preq, err := pipelineRequest(req.GetArguments())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	res, err := h.engine.Execute(ctx, preq)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(res, res.Failed())
}

// HandleValidate implements the validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preq, err := pipelineRequest(req.GetArguments())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	var unknown []string
	for i, s := range preq.Steps {
		if _, ok := h.registry.Command(s.Command); !ok {
			unknown = append(unknown, fmt.Sprintf("steps/%d: unknown command %q", i, s.Command))
		}
	}
	if len(unknown) > 0 {
		data, _ := json.Marshal(unknown)
		return errorResult(string(data)), nil
	}
	return textResult(fmt.Sprintf("✓ pipeline is valid (%d steps)", len(preq.Steps))), nil
}

// HandleSchema implements the schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := req.GetArguments()["command"].(string)
	if name == "" {
		data, err := schema.GenerateRequestJSONSchema()
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(string(data)), nil
	}
	raw, ok := h.registry.InputSchema(name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown command %q", name)), nil
	}
	return textResult(string(raw)), nil
}

// CommandHandler returns the handler for the single-command tool name. The
// call runs as a one-step pipeline so it gets the engine's normalization and
// trust metadata.
func (h *Handlers) CommandHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := req.GetArguments()
		if input == nil {
			input = map[string]any{}
		}
		res, err := h.engine.Execute(ctx, &schema.PipelineRequest{
			Steps: []schema.Step{{Command: name, Input: input}},
		})
		if err != nil {
			return errorResult(err.Error()), nil
		}
		step := res.Steps[0]
		return jsonResult(step, step.Status() != schema.StatusSuccess)
	}
}

// pipelineRequest assembles the request document from tool arguments and
// validates it like any other transport.
func pipelineRequest(args map[string]any) (*schema.PipelineRequest, error) {
	doc := map[string]any{"steps": args["steps"]}
	if v, ok := args["continueOnFailure"]; ok {
		doc["options"] = map[string]any{"continueOnFailure": v}
	}
	return schema.FromDocument(doc)
}

func jsonResult(v any, isErr bool) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %s", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
