package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const createToggle = `
steps:
  - command: create
    input: { title: Write docs }
    as: created
  - command: toggle
    input: { id: $steps.created.id }
`

// execute runs the root command in a clean directory so no stepwise.yaml
// is picked up.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_PrintsJSONResult(t *testing.T) {
	path := writeFile(t, "p.yaml", createToggle)
	out, err := execute(t, "", "run", "--format", "json", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res struct {
		Data     map[string]any `json:"data"`
		Metadata struct {
			CompletedSteps int `json:"completedSteps"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Metadata.CompletedSteps != 2 {
		t.Errorf("completedSteps = %d, want 2", res.Metadata.CompletedSteps)
	}
	if res.Data["completed"] != true {
		t.Errorf("data = %v, want completed todo", res.Data)
	}
}

func TestRun_FromStdin(t *testing.T) {
	out, err := execute(t, `{"steps":[{"command":"list"}]}`, "run", "--format", "text", "-")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "1/1 steps completed") {
		t.Errorf("text output = %q", out)
	}
}

func TestRun_FailedStepExitsOne(t *testing.T) {
	path := writeFile(t, "p.yaml", "steps:\n  - command: get\n    input: { id: missing }\n")
	out, err := execute(t, "", "run", "--format", "json", path)
	if code := exitCode(err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "NOT_FOUND") {
		t.Errorf("result should still be printed: %s", out)
	}
}

func TestRun_MalformedRequest(t *testing.T) {
	path := writeFile(t, "p.yaml", "steps: nope\n")
	if _, err := execute(t, "", "run", "--format", "json", path); err == nil {
		t.Fatal("expected an error for a malformed request")
	}
}

func TestValidate_UnknownCommand(t *testing.T) {
	path := writeFile(t, "p.yaml", "steps:\n  - command: frobnicate\n")
	if _, err := execute(t, "", "validate", path); err == nil {
		t.Fatal("expected validation to fail")
	}
	good := writeFile(t, "ok.yaml", createToggle)
	out, err := execute(t, "", "validate", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "2 steps") {
		t.Errorf("output = %q", out)
	}
}

func TestSchema_Command(t *testing.T) {
	out, err := execute(t, "", "schema", "command", "create")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, `"title"`) {
		t.Errorf("create schema missing title:\n%s", out)
	}
	if _, err := execute(t, "", "schema", "command", "nope"); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestSchema_Request(t *testing.T) {
	out, err := execute(t, "", "schema", "request")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !json.Valid([]byte(out)) || !strings.Contains(out, "continueOnFailure") {
		t.Errorf("request schema output:\n%s", out)
	}
}

func TestTest_Scenarios(t *testing.T) {
	passing := writeFile(t, "pass.yaml", `
name: toggles
pipeline:
`+indent(createToggle)+`
expect:
  steps: [success, success]
  data: { completed: true }
`)
	out, err := execute(t, "", "test", passing)
	if err != nil {
		t.Fatalf("test: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"passed": 1`) {
		t.Errorf("output = %s", out)
	}

	failing := writeFile(t, "fail.yaml", `
name: wrong expectation
pipeline:
  steps: [{ command: list }]
expect:
  completedSteps: 5
`)
	_, err = execute(t, "", "test", failing)
	if code := exitCode(err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	_, err = execute(t, "", "test", filepath.Join(t.TempDir(), "missing.yaml"))
	if code := exitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if exitCode(&exitError{code: 2}) != 2 {
		t.Error("exitError code not honoured")
	}
	if exitCode(errors.New("boom")) != 1 {
		t.Error("plain errors should exit 1")
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func TestRun_RecordScenario(t *testing.T) {
	t.Cleanup(func() { runRecord = "" })
	path := writeFile(t, "p.yaml", createToggle+"  - command: get\n    input: { id: missing }\n")
	scenario := filepath.Join(t.TempDir(), "recorded.yaml")

	_, err := execute(t, "", "run", "--format", "json", "--record", scenario, path)
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	runRecord = ""

	out, err := execute(t, "", "test", scenario)
	if err != nil {
		t.Fatalf("recorded scenario should pass: %v\n%s", err, out)
	}
}

func TestRun_RecordRedactsSecrets(t *testing.T) {
	t.Setenv("STEPWISE_CMD_TOKEN", "s3cr3t-value")
	pipeline := "steps:\n  - command: create\n    input: { title: deploy s3cr3t-value }\n"

	tests := []struct {
		name string
		args func(config string) []string
	}{
		{"flag", func(string) []string { return []string{"--secret", "STEPWISE_CMD_TOKEN"} }},
		{"config", func(config string) []string { return []string{"--config", config} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() {
				runRecord = ""
				runSecrets = nil
				flagConfig = ""
			})
			path := writeFile(t, "p.yaml", pipeline)
			config := writeFile(t, "stepwise.yaml", "record:\n  secrets: [STEPWISE_CMD_TOKEN]\n")
			scenario := filepath.Join(t.TempDir(), "recorded.yaml")

			args := append([]string{"run", "--format", "json", "--record", scenario}, tt.args(config)...)
			if _, err := execute(t, "", append(args, path)...); err != nil {
				t.Fatalf("run: %v", err)
			}
			raw, err := os.ReadFile(scenario)
			if err != nil {
				t.Fatal(err)
			}
			text := string(raw)
			if strings.Contains(text, "s3cr3t-value") {
				t.Errorf("secret leaked into recording:\n%s", text)
			}
			for _, want := range []string{"<REDACTED>", "calls:"} {
				if !strings.Contains(text, want) {
					t.Errorf("recording missing %q:\n%s", want, text)
				}
			}
		})
	}
}
