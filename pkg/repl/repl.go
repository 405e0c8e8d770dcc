// Package repl provides an interactive shell for building and running a
// pipeline one step at a time.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Executor runs a pipeline. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *schema.PipelineRequest) (*schema.PipelineResult, error)
}

// Catalogue lists the registered commands. *registry.Registry satisfies it.
type Catalogue interface {
	Commands() []registry.Command
}

// REPL holds the pipeline under construction and the last run's result.
type REPL struct {
	exec     Executor
	catalog  Catalogue
	output   io.Writer
	pipeline schema.PipelineRequest
	last     *schema.PipelineResult
}

// New creates a REPL writing to out (os.Stdout when nil).
func New(exec Executor, catalog Catalogue, out io.Writer) *REPL {
	if out == nil {
		out = os.Stdout
	}
	return &REPL{exec: exec, catalog: catalog, output: out}
}

// Pipeline returns the pipeline built so far.
func (r *REPL) Pipeline() *schema.PipelineRequest {
	return &r.pipeline
}

// Run starts the interactive loop on the terminal.
func (r *REPL) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	names := make([]readline.PrefixCompleterInterface, 0)
	for _, c := range r.catalog.Commands() {
		names = append(names, readline.PcItem(c.Name))
	}
	for _, verb := range verbs {
		item := readline.PcItem(verb)
		if verb == "add" {
			item.Children = names
		}
		completer.Children = append(completer.Children, item)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(r.output, "stepwise repl: %d commands available\n", len(r.catalog.Commands()))
	fmt.Fprintf(r.output, "Type 'help' for available commands, 'add <command> ...' to add a step.\n\n")

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := r.Handle(ctx, line); quit {
			return nil
		}
		rl.SetPrompt(r.prompt())
	}
}

// prompt is stepwise[<steps>]> or stepwise[<steps> | <status>]> after a run.
func (r *REPL) prompt() string {
	n := len(r.pipeline.Steps)
	if r.last == nil {
		return fmt.Sprintf("stepwise[%d]> ", n)
	}
	status := "ok"
	if r.last.Failed() {
		status = "failed"
	}
	return fmt.Sprintf("stepwise[%d | %s]> ", n, status)
}

// Handle executes one input line and reports whether the session should end.
func (r *REPL) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch verb {
	case "add", "a":
		err = r.handleAdd(rest)
	case "when", "w":
		err = r.handleWhen(rest)
	case "remove", "rm":
		err = r.handleRemove(rest)
	case "steps", "ls":
		err = r.handleSteps()
	case "run", "r":
		err = r.handleRun(ctx)
	case "show", "s":
		err = r.handleShow(rest)
	case "continue":
		err = r.handleContinue(rest)
	case "save":
		err = r.handleSave(rest)
	case "load":
		err = r.handleLoad(rest)
	case "reset":
		r.pipeline = schema.PipelineRequest{}
		r.last = nil
		fmt.Fprintf(r.output, "Pipeline cleared.\n")
	case "commands":
		r.handleCommands()
	case "help", "?":
		r.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(r.output, "Bye.\n")
		return true
	default:
		fmt.Fprintf(r.output, "Unknown command: %q. Type 'help' for available commands.\n", verb)
	}
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
	return false
}
