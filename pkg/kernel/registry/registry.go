// Package registry maps command names to schema-validated operations.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Operation is an invocable command. Input has already been resolved by the
// engine; validation is the operation's responsibility.
type Operation func(ctx context.Context, input any) (*Result, error)

// Lookup resolves command names. It is the only thing the engine needs from
// a registry.
type Lookup interface {
	Lookup(name string) (Operation, bool)
}

// Command describes one registered command.
type Command struct {
	Name        string
	Description string
	// Schema is the JSON Schema of the command's input.
	Schema *jsonschema.Schema
	// Run is called with input that already passed Schema.
	Run Operation
}

// Typed builds a Command whose input schema is reflected from In and whose
// handler receives the validated input decoded into In.
func Typed[In any](name, description string, fn func(ctx context.Context, in In) (*Result, error)) Command {
	r := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	s := r.Reflect(new(In))
	s.Version = ""
	s.Title = name
	s.Description = description
	return Command{
		Name:        name,
		Description: description,
		Schema:      s,
		Run: func(ctx context.Context, input any) (*Result, error) {
			var in In
			raw, err := json.Marshal(input)
			if err != nil {
				return nil, fmt.Errorf("encode input: %w", err)
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return Fail(schema.CodeValidation, err.Error()), nil
			}
			return fn(ctx, in)
		},
	}
}

// Registry is an in-process command registry with JSON Schema input
// validation. It is immutable after New and safe for concurrent use.
type Registry struct {
	commands map[string]*entry
}

type entry struct {
	cmd      Command
	compiled *sjsonschema.Schema
	raw      json.RawMessage
}

// New compiles every command's input schema and returns the registry.
func New(cmds ...Command) (*Registry, error) {
	reg := &Registry{commands: make(map[string]*entry, len(cmds))}
	var errs []error
	for _, cmd := range cmds {
		if cmd.Name == "" {
			errs = append(errs, fmt.Errorf("command with empty name"))
			continue
		}
		if _, dup := reg.commands[cmd.Name]; dup {
			errs = append(errs, fmt.Errorf("command %q registered twice", cmd.Name))
			continue
		}
		if cmd.Run == nil {
			errs = append(errs, fmt.Errorf("command %q has no handler", cmd.Name))
			continue
		}
		e, err := compile(cmd)
		if err != nil {
			errs = append(errs, fmt.Errorf("command %q: %w", cmd.Name, err))
			continue
		}
		reg.commands[cmd.Name] = e
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}

func compile(cmd Command) (*entry, error) {
	e := &entry{cmd: cmd}
	if cmd.Schema == nil {
		e.raw = json.RawMessage(`{"type":"object"}`)
	} else {
		raw, err := json.Marshal(cmd.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		e.raw = raw
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(e.raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := "mem://commands/" + cmd.Name + ".json"
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	e.compiled, err = c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return e, nil
}

// Lookup returns the validating operation for name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	e, ok := r.commands[name]
	if !ok {
		return nil, false
	}
	return e.invoke, true
}

func (e *entry) invoke(ctx context.Context, input any) (*Result, error) {
	if input == nil {
		input = map[string]any{}
	}
	if err := e.validate(input); err != nil {
		return Fail(schema.CodeValidation, err.Error()).
			WithSuggestion(fmt.Sprintf("check the input against the %q command schema", e.cmd.Name)), nil
	}
	return e.cmd.Run(ctx, input)
}

func (e *entry) validate(input any) error {
	// Round-trip through JSON so Go-typed inputs validate like wire inputs.
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("input is not JSON-encodable: %w", err)
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if err := e.compiled.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if errors.As(err, &ve) {
			return errors.New(describe(ve))
		}
		return err
	}
	return nil
}

func describe(ve *sjsonschema.ValidationError) string {
	var msgs []string
	for _, leaf := range leaves(ve) {
		loc := "/" + strings.Join(leaf.InstanceLocation, "/")
		msgs = append(msgs, fmt.Sprintf("%s: %v", loc, leaf.ErrorKind))
	}
	return strings.Join(msgs, "; ")
}

func leaves(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var out []*sjsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, e := range r.commands {
		out = append(out, e.cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Command returns the named command.
func (r *Registry) Command(name string) (Command, bool) {
	e, ok := r.commands[name]
	if !ok {
		return Command{}, false
	}
	return e.cmd, true
}

// InputSchema returns the JSON encoding of the named command's input schema.
func (r *Registry) InputSchema(name string) (json.RawMessage, bool) {
	e, ok := r.commands[name]
	if !ok {
		return nil, false
	}
	return e.raw, true
}
