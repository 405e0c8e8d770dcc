package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
)

type fakeExecutor struct {
	res   *schema.PipelineResult
	err   error
	calls int
}

func (f *fakeExecutor) Execute(ctx context.Context, req *schema.PipelineRequest) (*schema.PipelineResult, error) {
	f.calls++
	return f.res, f.err
}

func testPipeline() *schema.PipelineRequest {
	return &schema.PipelineRequest{Steps: []schema.Step{
		{Command: "create", Input: map[string]any{"title": "T"}, As: "created"},
		{Command: "toggle", Input: map[string]any{"id": "$steps.created.id"}},
		{Command: "get", Input: map[string]any{"id": "$prev.id"}},
	}}
}

func testResult() *schema.PipelineResult {
	return &schema.PipelineResult{
		Steps: []schema.StepResult{
			{Command: "create", Outcome: schema.Success{Data: map[string]any{"id": "t1"}}, ExecutionTimeMs: 1},
			{Command: "toggle", Outcome: schema.Failure{Error: &schema.CommandError{Code: "NOT_FOUND", Message: "no todo"}}, ExecutionTimeMs: 1},
			{Command: "get", Outcome: schema.Skipped{Reason: schema.SkipPolicy}},
		},
		Metadata: schema.Metadata{Confidence: 1, CompletedSteps: 1, ExecutionTimeMs: 2},
	}
}

func TestModel_InitFromPipeline(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})
	if len(m.steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(m.steps))
	}
	if m.steps[0].Command != "create" || m.steps[0].Alias != "created" {
		t.Errorf("step[0] = %+v", m.steps[0])
	}
	for _, s := range m.steps {
		if s.Status != "pending" {
			t.Errorf("step %d status = %q, want pending", s.Index, s.Status)
		}
	}
	if m.status != "idle" {
		t.Errorf("status = %q, want idle", m.status)
	}
}

func TestModel_InitRunsPipeline(t *testing.T) {
	exec := &fakeExecutor{res: testResult()}
	m := NewModel("demo", testPipeline(), exec)
	msg := m.Init()()
	done, ok := msg.(runCompleteMsg)
	if !ok {
		t.Fatalf("msg = %T, want runCompleteMsg", msg)
	}
	if exec.calls != 1 || done.Result == nil {
		t.Errorf("calls = %d, result = %v", exec.calls, done.Result)
	}
}

func TestModel_TracksStepStatus(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})

	m.applyTraceEvent(trace.Event{Type: trace.EventRunStart})
	if m.status != "running" {
		t.Errorf("status = %q, want running", m.status)
	}

	// Indexes arrive as float64 once decoded from JSONL.
	m.applyTraceEvent(trace.Event{Type: trace.EventStepStart, Data: map[string]any{"index": 0.0, "command": "create"}})
	if m.steps[0].Status != "running" {
		t.Errorf("after step_start: %q, want running", m.steps[0].Status)
	}

	m.applyTraceEvent(trace.Event{Type: trace.EventStepComplete, Data: map[string]any{
		"index": 0.0, "command": "create", "status": "success", "duration": "3ms",
	}})
	if m.steps[0].Status != "success" || m.steps[0].Duration.Milliseconds() != 3 {
		t.Errorf("after step_complete: %+v", m.steps[0])
	}

	m.applyTraceEvent(trace.Event{Type: trace.EventStepComplete, Data: map[string]any{
		"index": 1.0, "status": "failure", "failure": map[string]any{"code": "NOT_FOUND", "message": "no todo"},
	}})
	if m.steps[1].Status != "failure" || !strings.Contains(m.steps[1].Detail, "NOT_FOUND") {
		t.Errorf("failed step = %+v", m.steps[1])
	}

	m.applyTraceEvent(trace.Event{Type: trace.EventStepSkipped, Data: map[string]any{"index": 2.0, "reason": "policy"}})
	if m.steps[2].Status != "skipped" {
		t.Errorf("skipped step = %+v", m.steps[2])
	}

	// Out of range indexes are ignored.
	m.applyTraceEvent(trace.Event{Type: trace.EventStepStart, Data: map[string]any{"index": 9.0}})
}

func TestModel_RunComplete(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})
	updated, _ := m.Update(runCompleteMsg{Result: testResult()})
	m = updated.(Model)

	if m.status != "failed" {
		t.Errorf("status = %q, want failed", m.status)
	}
	want := []string{"success", "failure", "skipped"}
	for i, s := range m.steps {
		if s.Status != want[i] {
			t.Errorf("step %d = %q, want %q", i, s.Status, want[i])
		}
	}
	if !strings.Contains(m.View(), "1/3 completed") {
		t.Errorf("view missing summary:\n%s", m.View())
	}
}

func TestModel_RunError(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})
	updated, _ := m.Update(runCompleteMsg{Err: errors.New("malformed pipeline request: bad")})
	m = updated.(Model)
	if m.status != "failed" {
		t.Errorf("status = %q, want failed", m.status)
	}
	if !strings.Contains(m.View(), "malformed") {
		t.Error("view should show the request error")
	}
}

func TestModel_KeyNavigation(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})
	press := func(k tea.KeyMsg) {
		updated, _ := m.Update(k)
		m = updated.(Model)
	}

	press(tea.KeyMsg{Type: tea.KeyDown})
	press(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	press(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 2 {
		t.Errorf("selected = %d, want 2 (clamped)", m.selected)
	}
	press(tea.KeyMsg{Type: tea.KeyUp})
	if m.selected != 1 {
		t.Errorf("selected = %d, want 1", m.selected)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit should produce tea.QuitMsg")
	}
}

func TestModel_Rerun(t *testing.T) {
	exec := &fakeExecutor{res: testResult()}
	m := NewModel("demo", testPipeline(), exec)

	// Ignored while the first run is in flight.
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}); cmd != nil {
		t.Error("rerun before completion should be ignored")
	}

	updated, _ := m.Update(runCompleteMsg{Result: testResult()})
	m = updated.(Model)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("rerun should start the engine")
	}
	if m.status != "running" || m.steps[0].Status != "pending" {
		t.Errorf("status = %q, step[0] = %q", m.status, m.steps[0].Status)
	}
	cmd()
	if exec.calls != 1 {
		t.Errorf("calls = %d, want 1", exec.calls)
	}
}

func TestModel_DetailViewport(t *testing.T) {
	m := NewModel("demo", testPipeline(), &fakeExecutor{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	m = updated.(Model)
	if !m.ready {
		t.Fatal("viewport should be ready after a window size message")
	}
	updated, _ = m.Update(runCompleteMsg{Result: testResult()})
	m = updated.(Model)
	if md := m.detailMarkdown(); !strings.Contains(md, "create") || !strings.Contains(md, "t1") {
		t.Errorf("detail markdown = %q", md)
	}
}

func TestEventSink_SplitsLines(t *testing.T) {
	var got []trace.Event
	sink := NewEventSink(func(msg tea.Msg) {
		got = append(got, msg.(traceEventMsg).Event)
	})
	w := trace.NewWriter(sink)
	if err := w.EmitRunStart("run-1", 2, false); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := w.EmitStepStart("run-1", 0, "create"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}

	// A line split across writes is delivered once complete.
	got = nil
	line := `{"type":"step_start","run_id":"r","data":{"index":1}}` + "\n"
	sink.Write([]byte(line[:10]))
	if len(got) != 0 {
		t.Fatal("partial line should be buffered")
	}
	sink.Write([]byte(line[10:]))
	if len(got) != 1 || got[0].Type != trace.EventStepStart {
		t.Errorf("events = %+v", got)
	}
}
