package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/report"
)

var verbs = []string{"add", "when", "remove", "steps", "run", "show", "continue", "save", "load", "reset", "commands", "help", "quit"}

// handleAdd parses "add <command> [as <alias>] [input]". Input is YAML or
// JSON, usually a flow mapping such as {title: Groceries}.
func (r *REPL) handleAdd(args string) error {
	name, rest, _ := strings.Cut(args, " ")
	if name == "" {
		return fmt.Errorf("usage: add <command> [as <alias>] [input]")
	}
	step := schema.Step{Command: name}

	rest = strings.TrimSpace(rest)
	if after, ok := strings.CutPrefix(rest, "as "); ok {
		alias, input, _ := strings.Cut(strings.TrimSpace(after), " ")
		step.As = alias
		rest = strings.TrimSpace(input)
	}
	if rest != "" {
		var input any
		if err := schema.DecodeYAML([]byte(rest), &input); err != nil {
			return fmt.Errorf("input: %w", err)
		}
		step.Input = input
	}

	candidate := r.pipeline
	candidate.Steps = append(append([]schema.Step(nil), r.pipeline.Steps...), step)
	if err := schema.Validate(&candidate); err != nil {
		return err
	}
	if !r.known(name) {
		fmt.Fprintf(r.output, "warning: %q is not a registered command\n", name)
	}
	r.pipeline = candidate
	fmt.Fprintf(r.output, "Added step %d: %s\n", len(r.pipeline.Steps)-1, describeStep(step))
	return nil
}

// handleWhen parses "when <index> <predicate>"; an empty predicate clears it.
func (r *REPL) handleWhen(args string) error {
	idxText, rest, _ := strings.Cut(args, " ")
	idx, err := r.index(idxText)
	if err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		r.pipeline.Steps[idx].When = nil
		fmt.Fprintf(r.output, "Cleared condition on step %d.\n", idx)
		return nil
	}
	var when map[string]any
	if err := schema.DecodeYAML([]byte(rest), &when); err != nil {
		return fmt.Errorf("predicate: %w", err)
	}
	if _, err := eval.ParseCondition(when); err != nil {
		return err
	}
	r.pipeline.Steps[idx].When = when
	fmt.Fprintf(r.output, "Step %d now runs only when %s\n", idx, rest)
	return nil
}

func (r *REPL) handleRemove(args string) error {
	idx, err := r.index(args)
	if err != nil {
		return err
	}
	r.pipeline.Steps = append(r.pipeline.Steps[:idx], r.pipeline.Steps[idx+1:]...)
	fmt.Fprintf(r.output, "Removed step %d.\n", idx)
	return nil
}

func (r *REPL) handleSteps() error {
	if len(r.pipeline.Steps) == 0 {
		fmt.Fprintf(r.output, "No steps yet.\n")
		return nil
	}
	for i, s := range r.pipeline.Steps {
		fmt.Fprintf(r.output, "  %d  %s\n", i, describeStep(s))
	}
	if r.pipeline.Options.ContinueOnFailure != nil {
		fmt.Fprintf(r.output, "  continueOnFailure: %v\n", *r.pipeline.Options.ContinueOnFailure)
	}
	return nil
}

func (r *REPL) handleRun(ctx context.Context) error {
	res, err := r.exec.Execute(ctx, &r.pipeline)
	if err != nil {
		return err
	}
	r.last = res
	return report.WriteResult(r.output, res)
}

// handleShow prints the last run's data, or one step's result.
func (r *REPL) handleShow(args string) error {
	if r.last == nil {
		return fmt.Errorf("nothing has run yet")
	}
	var v any = r.last
	if args != "" {
		idx, err := strconv.Atoi(args)
		if err != nil || idx < 0 || idx >= len(r.last.Steps) {
			return fmt.Errorf("no step %q in the last run", args)
		}
		v = r.last.Steps[idx]
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "%s\n", data)
	return nil
}

func (r *REPL) handleContinue(args string) error {
	var v bool
	switch args {
	case "on", "true":
		v = true
	case "off", "false":
	case "default":
		r.pipeline.Options.ContinueOnFailure = nil
		fmt.Fprintf(r.output, "continueOnFailure: engine default\n")
		return nil
	default:
		return fmt.Errorf("usage: continue on|off|default")
	}
	r.pipeline.Options.ContinueOnFailure = &v
	fmt.Fprintf(r.output, "continueOnFailure: %v\n", v)
	return nil
}

func (r *REPL) handleSave(path string) error {
	if path == "" {
		return fmt.Errorf("usage: save <file>")
	}
	data, err := yaml.Marshal(&r.pipeline)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pipeline: %w", err)
	}
	fmt.Fprintf(r.output, "Saved %d steps to %s\n", len(r.pipeline.Steps), path)
	return nil
}

func (r *REPL) handleLoad(path string) error {
	if path == "" {
		return fmt.Errorf("usage: load <file>")
	}
	req, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	r.pipeline = *req
	r.last = nil
	fmt.Fprintf(r.output, "Loaded %d steps from %s\n", len(req.Steps), path)
	return nil
}

func (r *REPL) handleCommands() {
	for _, c := range r.catalog.Commands() {
		fmt.Fprintf(r.output, "  %-12s %s\n", c.Name, c.Description)
	}
}

func (r *REPL) handleHelp() {
	fmt.Fprintf(r.output, `Commands:
  add <command> [as <alias>] [input]   Append a step (input is YAML/JSON)
  when <index> [predicate]             Guard a step, e.g. when 2 {$eq: [$prev.completed, false]}
  remove <index>                       Remove a step
  steps                                List the pipeline
  run                                  Execute the pipeline
  show [index]                         Show the last result or one step
  continue on|off|default              Set continueOnFailure
  save <file> / load <file>            Write or read the pipeline as YAML
  reset                                Clear the pipeline
  commands                             List registered commands
  help                                 Show this help
  quit                                 Exit
`)
}

func (r *REPL) known(name string) bool {
	for _, c := range r.catalog.Commands() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (r *REPL) index(s string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || idx < 0 || idx >= len(r.pipeline.Steps) {
		return 0, fmt.Errorf("no step %q (have %d)", s, len(r.pipeline.Steps))
	}
	return idx, nil
}

func describeStep(s schema.Step) string {
	var b strings.Builder
	b.WriteString(s.Command)
	if s.Input != nil {
		if raw, err := json.Marshal(s.Input); err == nil {
			b.WriteString(" " + string(raw))
		}
	}
	if s.As != "" {
		b.WriteString(" as " + s.As)
	}
	if len(s.When) > 0 {
		if raw, err := json.Marshal(s.When); err == nil {
			b.WriteString(" when " + string(raw))
		}
	}
	return b.String()
}
