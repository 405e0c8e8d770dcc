// Package tui implements a terminal UI that runs a pipeline and lets the
// user browse each step's result.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
	"github.com/ormasoftchile/stepwise/pkg/report"
)

// Executor runs a pipeline. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *schema.PipelineRequest) (*schema.PipelineResult, error)
}

// StepState tracks the status of each step in the TUI.
type StepState struct {
	Index    int
	Command  string
	Alias    string
	Status   string // "pending", "running", "success", "failure", "skipped"
	Duration time.Duration
	Detail   string
}

// Model is the Bubble Tea model for stepwise-tui.
type Model struct {
	name     string
	pipeline *schema.PipelineRequest
	exec     Executor
	steps    []StepState
	selected int
	result   *schema.PipelineResult
	status   string // "idle", "running", "completed", "failed"
	err      error
	detail   viewport.Model
	ready    bool
	width    int
	height   int
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewModel creates a TUI model for a pipeline. The engine behind exec should
// write its trace to an EventSink feeding the same program.
func NewModel(name string, req *schema.PipelineRequest, exec Executor) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		name:     name,
		pipeline: req,
		exec:     exec,
		steps:    pendingSteps(req),
		status:   "idle",
		ctx:      ctx,
		cancel:   cancel,
	}
}

func pendingSteps(req *schema.PipelineRequest) []StepState {
	steps := make([]StepState, 0, len(req.Steps))
	for i, s := range req.Steps {
		steps = append(steps, StepState{
			Index:   i,
			Command: s.Command,
			Alias:   s.As,
			Status:  "pending",
		})
	}
	return steps
}

// --- Messages ---

// traceEventMsg delivers a trace event to the TUI.
type traceEventMsg struct {
	Event trace.Event
}

// runCompleteMsg signals run completion.
type runCompleteMsg struct {
	Result *schema.PipelineResult
	Err    error
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.startRun()
}

// startRun executes the pipeline off the UI goroutine.
func (m Model) startRun() tea.Cmd {
	exec, req, ctx := m.exec, m.pipeline, m.ctx
	return func() tea.Msg {
		res, err := exec.Execute(ctx, req)
		return runCompleteMsg{Result: res, Err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
				m.refreshDetail()
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.steps)-1 {
				m.selected++
				m.refreshDetail()
			}
		case key.Matches(msg, keys.Rerun):
			if m.status == "completed" || m.status == "failed" {
				m.steps = pendingSteps(m.pipeline)
				m.result = nil
				m.err = nil
				m.status = "running"
				m.refreshDetail()
				return m, m.startRun()
			}
		case key.Matches(msg, keys.PgUp):
			m.detail.HalfPageUp()
		case key.Matches(msg, keys.PgDown):
			m.detail.HalfPageDown()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case traceEventMsg:
		m.applyTraceEvent(msg.Event)

	case runCompleteMsg:
		m.applyResult(msg.Result, msg.Err)
	}

	return m, nil
}

// applyTraceEvent updates step states based on trace events.
func (m *Model) applyTraceEvent(evt trace.Event) {
	switch evt.Type {
	case trace.EventRunStart:
		m.status = "running"
		return
	case trace.EventStepStart, trace.EventStepComplete, trace.EventStepSkipped:
	default:
		return
	}

	idx, ok := eventIndex(evt.Data["index"])
	if !ok || idx < 0 || idx >= len(m.steps) {
		return
	}
	s := &m.steps[idx]
	switch evt.Type {
	case trace.EventStepStart:
		s.Status = "running"
	case trace.EventStepSkipped:
		s.Status = "skipped"
		reason, _ := evt.Data["reason"].(string)
		s.Detail = "skipped (" + reason + ")"
	case trace.EventStepComplete:
		s.Status, _ = evt.Data["status"].(string)
		if d, ok := evt.Data["duration"].(string); ok {
			s.Duration, _ = time.ParseDuration(d)
		}
		if f, ok := evt.Data["failure"].(map[string]any); ok {
			s.Detail = fmt.Sprintf("%v: %v", f["code"], f["message"])
		}
	}
	if idx == m.selected {
		m.refreshDetail()
	}
}

// eventIndex accepts the index as decoded from JSON or as emitted.
func eventIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// applyResult reconciles the step list with the final result, which is
// authoritative over anything the trace delivered.
func (m *Model) applyResult(res *schema.PipelineResult, err error) {
	m.err = err
	m.result = res
	if err != nil || res == nil {
		m.status = "failed"
		return
	}
	for i, r := range res.Steps {
		if i >= len(m.steps) {
			break
		}
		m.steps[i].Status = string(r.Status())
		m.steps[i].Duration = time.Duration(r.ExecutionTimeMs * float64(time.Millisecond))
		m.steps[i].Detail = report.StepDetail(r)
	}
	m.status = "completed"
	if res.Failed() {
		m.status = "failed"
	}
	m.refreshDetail()
}

func (m *Model) resize() {
	w := m.width - 4
	h := m.height - len(m.steps) - 9
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	if !m.ready {
		m.detail = viewport.New(w, h)
		m.ready = true
	} else {
		m.detail.Width = w
		m.detail.Height = h
	}
	m.refreshDetail()
}

func (m *Model) refreshDetail() {
	if !m.ready {
		return
	}
	md := m.detailMarkdown()
	out, err := report.RenderMarkdown(md, m.detail.Width)
	if err != nil {
		out = md
	}
	m.detail.SetContent(out)
	m.detail.GotoTop()
}

// detailMarkdown describes the selected step.
func (m Model) detailMarkdown() string {
	if m.selected >= len(m.steps) {
		return ""
	}
	s := m.steps[m.selected]
	var b strings.Builder
	fmt.Fprintf(&b, "### %d. %s\n\n", s.Index, s.Command)
	fmt.Fprintf(&b, "**%s**", s.Status)
	if s.Duration > 0 {
		fmt.Fprintf(&b, " · %s", s.Duration.Truncate(time.Microsecond))
	}
	if s.Alias != "" {
		fmt.Fprintf(&b, " · as `%s`", s.Alias)
	}
	b.WriteString("\n\n")
	if s.Detail != "" {
		b.WriteString(s.Detail + "\n\n")
	}
	if m.result != nil && m.selected < len(m.result.Steps) {
		if data, ok := m.result.Steps[m.selected].Data(); ok {
			raw, err := json.MarshalIndent(data, "", "  ")
			if err == nil {
				b.WriteString("```json\n" + string(raw) + "\n```\n")
			}
		}
	}
	return b.String()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("stepwise-tui: " + m.name))
	b.WriteString("\n\n")

	for i, s := range m.steps {
		line := fmt.Sprintf("%s %d %s", stepIcon(s.Status), s.Index, s.Command)
		if s.Alias != "" {
			line += " → " + s.Alias
		}
		if s.Duration > 0 {
			line += "  " + dimStyle.Render(s.Duration.Truncate(time.Microsecond).String())
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render(GlyphCursor+" ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())

	if m.ready {
		b.WriteString("\n")
		b.WriteString(panelBorder.Render(m.detail.View()))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + keys.helpLine()))
	return b.String()
}

func (m Model) statusLine() string {
	switch m.status {
	case "idle":
		return dimStyle.Render("  Ready")
	case "running":
		return dimStyle.Render("  Running...")
	case "completed", "failed":
		if m.err != nil {
			return "  " + failedStyle.Render(GlyphFailed+" "+m.err.Error())
		}
		if m.result == nil {
			return "  " + failedStyle.Render(GlyphFailed+" no result")
		}
		md := m.result.Metadata
		text := fmt.Sprintf(" %d/%d completed · confidence %.2f", md.CompletedSteps, len(m.result.Steps), md.Confidence)
		if m.status == "failed" {
			return "  " + failedStyle.Render(GlyphFailed+text)
		}
		return "  " + passedStyle.Render(GlyphPassed+text)
	}
	return ""
}
