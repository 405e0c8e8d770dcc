package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	reg, err := todo.NewRegistry(todo.NewStore())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return NewHandlers(engine.New(reg, engine.Config{}), reg)
}

func call(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", result.Content[0])
	}
	return result, text.Text
}

func TestHandlePipeline(t *testing.T) {
	h := newTestHandlers(t)
	result, text := call(t, h.HandlePipeline, map[string]any{
		"steps": []any{
			map[string]any{"command": "create", "input": map[string]any{"title": "T"}, "as": "created"},
			map[string]any{"command": "toggle", "input": map[string]any{"id": "$steps.created.id"}},
		},
	})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", text)
	}
	var res schema.PipelineResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Metadata.CompletedSteps != 2 {
		t.Errorf("completedSteps = %d, want 2", res.Metadata.CompletedSteps)
	}
	if m, _ := res.Data.(map[string]any); m["completed"] != true {
		t.Errorf("data = %v", res.Data)
	}
}

func TestHandlePipeline_StepFailureIsError(t *testing.T) {
	h := newTestHandlers(t)
	result, text := call(t, h.HandlePipeline, map[string]any{
		"steps":             []any{map[string]any{"command": "get", "input": map[string]any{"id": "x"}}, map[string]any{"command": "list"}},
		"continueOnFailure": true,
	})
	if !result.IsError {
		t.Error("expected IsError when a step failed")
	}
	if !strings.Contains(text, `"NOT_FOUND"`) || !strings.Contains(text, `"completedSteps": 1`) {
		t.Errorf("result = %s", text)
	}
}

func TestHandlePipeline_Malformed(t *testing.T) {
	h := newTestHandlers(t)
	tests := []map[string]any{
		{},
		{"steps": "create"},
		{"steps": []any{map[string]any{"input": map[string]any{}}}},
		{"steps": []any{map[string]any{"command": "list", "as": "a"}, map[string]any{"command": "list", "as": "a"}}},
	}
	for _, args := range tests {
		result, text := call(t, h.HandlePipeline, args)
		if !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
		if !strings.Contains(text, "malformed pipeline request") {
			t.Errorf("args %v: text = %q", args, text)
		}
	}
}

func TestHandleValidate(t *testing.T) {
	h := newTestHandlers(t)
	result, text := call(t, h.HandleValidate, map[string]any{
		"steps": []any{map[string]any{"command": "list"}},
	})
	if result.IsError {
		t.Errorf("unexpected error: %s", text)
	}

	result, text = call(t, h.HandleValidate, map[string]any{
		"steps": []any{map[string]any{"command": "launch"}},
	})
	if !result.IsError || !strings.Contains(text, "launch") {
		t.Errorf("expected unknown command error, got %q", text)
	}
}

func TestHandleSchema(t *testing.T) {
	h := newTestHandlers(t)
	result, text := call(t, h.HandleSchema, map[string]any{})
	if result.IsError || !strings.Contains(text, schema.RequestSchemaID) {
		t.Errorf("request schema = %q", text)
	}

	result, text = call(t, h.HandleSchema, map[string]any{"command": "create"})
	if result.IsError || !strings.Contains(text, `"title"`) {
		t.Errorf("create schema = %q", text)
	}

	result, _ = call(t, h.HandleSchema, map[string]any{"command": "foo"})
	if !result.IsError {
		t.Error("expected error for unknown command")
	}
}

func TestCommandHandler(t *testing.T) {
	h := newTestHandlers(t)
	result, text := call(t, h.CommandHandler("create"), map[string]any{"title": "direct"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, `"status": "success"`) || !strings.Contains(text, `"direct"`) {
		t.Errorf("result = %s", text)
	}

	result, _ = call(t, h.CommandHandler("create"), nil)
	if !result.IsError {
		t.Error("missing title should fail validation")
	}
}

func TestNewServer(t *testing.T) {
	h := newTestHandlers(t)
	if _, err := NewServer("test", h); err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	reg, err := registry.New(registry.Command{
		Name: ToolPipeline,
		Run: func(ctx context.Context, input any) (*registry.Result, error) {
			return registry.OK(nil), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewServer("test", NewHandlers(engine.New(reg, engine.Config{}), reg)); err == nil {
		t.Error("expected collision error")
	}
}
