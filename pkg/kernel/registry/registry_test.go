package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

type echoInput struct {
	Message string `json:"message" jsonschema:"minLength=1"`
	Repeat  int    `json:"repeat,omitempty" jsonschema:"minimum=1"`
}

func echoCommand() Command {
	return Typed("echo", "Echo a message", func(ctx context.Context, in echoInput) (*Result, error) {
		n := in.Repeat
		if n == 0 {
			n = 1
		}
		return OK(map[string]any{"message": strings.Repeat(in.Message, n)}).
			WithConfidence(0.9).
			WithReasoning("echoed"), nil
	})
}

func TestRegistry_LookupAndInvoke(t *testing.T) {
	reg, err := New(echoCommand())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	op, ok := reg.Lookup("echo")
	if !ok {
		t.Fatal("echo not found")
	}
	res, err := op(context.Background(), map[string]any{"message": "hi", "repeat": 2.0})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	data := res.Data.(map[string]any)
	if data["message"] != "hihi" {
		t.Errorf("message = %v, want hihi", data["message"])
	}
	if res.Confidence == nil || *res.Confidence != 0.9 {
		t.Errorf("confidence = %v", res.Confidence)
	}
}

func TestRegistry_ValidationFailure(t *testing.T) {
	reg, err := New(echoCommand())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	op, _ := reg.Lookup("echo")

	tests := []struct {
		name  string
		input any
	}{
		{"missing required", map[string]any{}},
		{"nil input", nil},
		{"wrong type", map[string]any{"message": 5.0}},
		{"empty string", map[string]any{"message": ""}},
		{"unknown field", map[string]any{"message": "x", "extra": true}},
		{"below minimum", map[string]any{"message": "x", "repeat": 0.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := op(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("invoke: %v", err)
			}
			if res.Success {
				t.Fatal("expected validation failure")
			}
			if res.Error.Code != schema.CodeValidation {
				t.Errorf("code = %q, want %q", res.Error.Code, schema.CodeValidation)
			}
			if res.Error.Suggestion == "" {
				t.Error("expected a suggestion")
			}
		})
	}
}

func TestRegistry_UnknownCommand(t *testing.T) {
	reg, err := New(echoCommand())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := reg.Lookup("nope"); ok {
		t.Error("unknown command should not resolve")
	}
}

func TestNew_RejectsBadCommands(t *testing.T) {
	_, err := New(echoCommand(), echoCommand(), Command{Name: "nil-handler"}, Command{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"registered twice", "no handler", "empty name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestRegistry_InputSchema(t *testing.T) {
	reg, err := New(echoCommand(), Command{Name: "raw", Run: func(ctx context.Context, input any) (*Result, error) {
		return nil, errors.New("unused")
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, ok := reg.InputSchema("echo")
	if !ok {
		t.Fatal("schema not found")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("schema JSON: %v", err)
	}
	props, _ := doc["properties"].(map[string]any)
	if _, ok := props["message"]; !ok {
		t.Errorf("schema properties = %v, want message", props)
	}
	if raw, _ := reg.InputSchema("raw"); string(raw) != `{"type":"object"}` {
		t.Errorf("default schema = %s", raw)
	}
	names := []string{}
	for _, c := range reg.Commands() {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "echo,raw" {
		t.Errorf("commands = %v", names)
	}
}
