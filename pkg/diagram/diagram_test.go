package diagram

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

func todoPipeline() *schema.PipelineRequest {
	return &schema.PipelineRequest{Steps: []schema.Step{
		{Command: "create", Input: map[string]any{"title": "T"}, As: "created"},
		{Command: "toggle", Input: map[string]any{"id": "$steps.created.id"}},
		{
			Command: "get",
			Input:   map[string]any{"id": "$prev.id"},
			When:    map[string]any{"$eq": []any{"$prev.completed", true}},
		},
	}}
}

func TestGenerateMermaid_LinearFlow(t *testing.T) {
	out, err := Generate(todoPipeline(), "todo", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "flowchart TD") {
		t.Error("missing flowchart header")
	}
	for _, want := range []string{
		"START --> s0",
		"s0 --> s1",
		"s2 --> END([done])",
		`s0["0. create<br/>→ created"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}
}

func TestGenerateMermaid_Guard(t *testing.T) {
	out, err := Generate(todoPipeline(), "todo", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		`s2_when{"$prev.completed == true"}`,
		"s1 --> s2_when",
		`s2_when -->|"yes"| s2`,
		`s2_when -->|"skip"| END`,
		"style s2 fill",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}
}

func TestGenerateMermaid_DataFlow(t *testing.T) {
	out, err := Generate(todoPipeline(), "todo", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `s0 -.->|"id"| s1`) {
		t.Errorf("missing alias data edge, got:\n%s", out)
	}
	if !strings.Contains(out, `s1 -.->|"completed"| s2`) {
		t.Errorf("missing $prev data edge, got:\n%s", out)
	}
}

func TestGenerateASCII(t *testing.T) {
	out, err := Generate(todoPipeline(), "todo", FormatASCII)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"todo", "○ 0. create", "→ created", "← $steps.created.id", "◇ 2. get", "? $prev.completed == true"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}

	// Every box line has the same display width.
	width := -1
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "│" {
			continue
		}
		w := runewidth.StringWidth(line)
		if width == -1 {
			width = w
		} else if w != width {
			t.Errorf("line %q width = %d, want %d", line, w, width)
		}
	}
}

func TestGenerate_Empty(t *testing.T) {
	out, err := Generate(&schema.PipelineRequest{}, "", FormatASCII)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Pipeline (empty)\n" {
		t.Errorf("out = %q", out)
	}
}

func TestGenerate_Errors(t *testing.T) {
	if _, err := Generate(nil, "x", FormatASCII); err == nil {
		t.Error("expected error for nil pipeline")
	}
	if _, err := Generate(todoPipeline(), "x", Format("svg")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestDescribeWhen(t *testing.T) {
	tests := []struct {
		when map[string]any
		want string
	}{
		{map[string]any{"$gte": []any{"$prev.count", 2.0}}, "$prev.count >= 2"},
		{map[string]any{"$ne": []any{"$steps.a.title", "x"}}, `$steps.a.title != "x"`},
		{map[string]any{"$nope": []any{1, 2}}, "invalid when"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := describeWhen(tt.when); got != tt.want {
			t.Errorf("describeWhen(%v) = %q, want %q", tt.when, got, tt.want)
		}
	}
}
