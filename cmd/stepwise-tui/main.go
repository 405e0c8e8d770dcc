// Package main provides the stepwise-tui binary, a Bubble Tea terminal UI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/stepwise/pkg/ecosystem/tui"
	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: stepwise-tui <pipeline.yaml> [--continue-on-failure]")
		os.Exit(1)
	}

	filePath := os.Args[1]
	continueOnFailure := false
	for _, arg := range os.Args[2:] {
		if arg == "--continue-on-failure" {
			continueOnFailure = true
		}
	}

	req, err := schema.LoadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reg, err := todo.NewRegistry(todo.NewStore())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The program must exist before the engine so trace events can be
	// forwarded to it; the sink resolves p lazily.
	var p *tea.Program
	sink := tui.NewEventSink(func(msg tea.Msg) { p.Send(msg) })
	eng := engine.New(reg, engine.Config{
		ContinueOnFailure: continueOnFailure,
		Trace:             trace.NewWriter(sink),
	})

	model := tui.NewModel(filepath.Base(filePath), req, eng)
	p = tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
