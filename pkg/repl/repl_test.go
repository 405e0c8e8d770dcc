package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	reg, err := todo.NewRegistry(todo.NewStore())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var buf bytes.Buffer
	return New(engine.New(reg, engine.Config{}), reg, &buf), &buf
}

func feed(t *testing.T, r *REPL, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if r.Handle(context.Background(), l) {
			t.Fatalf("line %q ended the session", l)
		}
	}
}

// TestREPLHelp verifies help output lists all commands.
func TestREPLHelp(t *testing.T) {
	r, buf := newTestREPL(t)
	r.Handle(context.Background(), "help")
	for _, verb := range verbs {
		if !strings.Contains(buf.String(), verb) {
			t.Errorf("help output missing command %q", verb)
		}
	}
}

func TestREPL_AddAndRun(t *testing.T) {
	r, buf := newTestREPL(t)
	feed(t, r,
		"add create as created {title: Groceries}",
		"add toggle {id: $steps.created.id}",
		"add get {id: $prev.id}",
		"run",
	)

	p := r.Pipeline()
	if len(p.Steps) != 3 || p.Steps[0].As != "created" {
		t.Fatalf("pipeline = %+v", p.Steps)
	}
	if in := p.Steps[1].Input.(map[string]any); in["id"] != "$steps.created.id" {
		t.Errorf("toggle input = %v", in)
	}
	out := buf.String()
	if !strings.Contains(out, "3/3 steps completed") {
		t.Errorf("run output:\n%s", out)
	}
	if r.prompt() != "stepwise[3 | ok]> " {
		t.Errorf("prompt = %q", r.prompt())
	}

	buf.Reset()
	feed(t, r, "show 2")
	if !strings.Contains(buf.String(), `"completed": true`) {
		t.Errorf("show output:\n%s", buf.String())
	}
}

func TestREPL_WhenAndContinue(t *testing.T) {
	r, buf := newTestREPL(t)
	feed(t, r,
		"add get {id: missing}",
		"add create {title: after}",
		"when 1 {$ne: [$prev.id, x]}",
		"continue on",
	)
	p := r.Pipeline()
	if p.Steps[1].When == nil {
		t.Fatal("when not set")
	}
	if p.Options.ContinueOnFailure == nil || !*p.Options.ContinueOnFailure {
		t.Error("continueOnFailure should be on")
	}

	feed(t, r, "run")
	if !strings.Contains(buf.String(), "1/2 steps completed") {
		t.Errorf("run output:\n%s", buf.String())
	}
	if r.prompt() != "stepwise[2 | failed]> " {
		t.Errorf("prompt = %q", r.prompt())
	}
}

func TestREPL_Errors(t *testing.T) {
	r, buf := newTestREPL(t)
	feed(t, r,
		"add create as a {title: x}",
		"add create as a {title: y}",
		"when 5 {$eq: [1, 1]}",
		"when 0 {$like: [1, 1]}",
		"show",
		"bogus",
	)
	out := buf.String()
	for _, want := range []string{"already bound", "no step", "unknown operator", "nothing has run yet", "Unknown command"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(r.Pipeline().Steps) != 1 {
		t.Errorf("steps = %d, want 1", len(r.Pipeline().Steps))
	}
}

func TestREPL_UnknownCommandWarns(t *testing.T) {
	r, buf := newTestREPL(t)
	feed(t, r, "add launch")
	if !strings.Contains(buf.String(), "not a registered command") {
		t.Errorf("output:\n%s", buf.String())
	}
	if len(r.Pipeline().Steps) != 1 {
		t.Error("unknown commands are still added")
	}
}

func TestREPL_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	r, _ := newTestREPL(t)
	feed(t, r, "add create as c {title: saved}", "continue off", "save "+path, "reset")
	if len(r.Pipeline().Steps) != 0 {
		t.Fatal("reset should clear the pipeline")
	}
	feed(t, r, "load "+path)
	p := r.Pipeline()
	if len(p.Steps) != 1 || p.Steps[0].As != "c" {
		t.Fatalf("loaded = %+v", p.Steps)
	}
	if p.Options.ContinueOnFailure == nil || *p.Options.ContinueOnFailure {
		t.Error("continueOnFailure should round-trip as false")
	}
}

func TestREPL_RemoveAndQuit(t *testing.T) {
	r, _ := newTestREPL(t)
	feed(t, r, "add list", "add list", "remove 0")
	if len(r.Pipeline().Steps) != 1 {
		t.Errorf("steps = %d, want 1", len(r.Pipeline().Steps))
	}
	if !r.Handle(context.Background(), "quit") {
		t.Error("quit should end the session")
	}
}
