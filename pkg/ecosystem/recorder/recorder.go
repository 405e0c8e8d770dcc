// Package recorder captures command invocations made during a pipeline run
// and turns a finished run into a regression scenario.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	stest "github.com/ormasoftchile/stepwise/pkg/kernel/testing"
)

// Invocation records a single command call.
type Invocation = stest.Call

// Recorder wraps a registry.Lookup and captures every invocation.
type Recorder struct {
	inner       registry.Lookup
	mu          sync.Mutex
	invocations []Invocation
	secrets     []string // env var names whose values should be redacted
}

// New creates a recording wrapper around an existing command lookup.
func New(inner registry.Lookup) *Recorder {
	return &Recorder{inner: inner}
}

// SetSecrets configures secret env var names whose values are redacted in
// captured inputs and data.
func (r *Recorder) SetSecrets(envVars []string) {
	r.secrets = envVars
}

// Invocations returns a copy of the captured calls in invocation order.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.invocations...)
}

// Lookup implements registry.Lookup. Misses are passed through unrecorded.
func (r *Recorder) Lookup(name string) (registry.Operation, bool) {
	op, ok := r.inner.Lookup(name)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, input any) (*registry.Result, error) {
		res, err := op(ctx, input)
		inv := Invocation{Command: name, Input: r.capture(input)}
		switch {
		case err != nil:
			inv.Code = schema.CodeCommand
		case res == nil:
		case res.Success:
			inv.Success = true
			inv.Data = r.capture(res.Data)
		case res.Error != nil:
			inv.Code = res.Error.Code
		}
		r.mu.Lock()
		r.invocations = append(r.invocations, inv)
		r.mu.Unlock()
		return res, err
	}, true
}

// capture returns the redacted JSON form of v, or nil when v does not
// encode as JSON.
func (r *Recorder) capture(v any) any {
	n, err := eval.Normalize(v)
	if err != nil {
		return nil
	}
	return r.redact(n)
}

// redact replaces secret values with <REDACTED> in strings nested anywhere
// in v. Non-generic values pass through untouched.
func (r *Recorder) redact(v any) any {
	switch x := v.(type) {
	case string:
		for _, envVar := range r.secrets {
			if val := os.Getenv(envVar); val != "" {
				x = strings.ReplaceAll(x, val, "<REDACTED>")
			}
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = r.redact(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = r.redact(e)
		}
		return out
	default:
		return v
	}
}

// Scenario builds a regression scenario that pins the outcome of a run:
// per-step statuses, error codes, the completed count and the aggregate
// confidence. Result data is not pinned since it carries generated IDs.
func Scenario(name string, req *schema.PipelineRequest, res *schema.PipelineResult) stest.Scenario {
	completed := res.Metadata.CompletedSteps
	confidence := res.Metadata.Confidence
	exp := stest.Expect{
		Steps:          make([]schema.StepStatus, 0, len(res.Steps)),
		CompletedSteps: &completed,
		Confidence:     &confidence,
	}
	var codes []string
	hasCode := false
	for _, s := range res.Steps {
		exp.Steps = append(exp.Steps, s.Status())
		code := ""
		if e := s.Err(); e != nil {
			code = e.Code
			hasCode = true
		}
		codes = append(codes, code)
	}
	if hasCode {
		exp.Codes = codes
	}
	return stest.Scenario{
		Name:     name,
		Tags:     []string{"recorded"},
		Pipeline: req,
		Expect:   exp,
	}
}

// Scenario builds the regression scenario for a run made through r. The
// captured calls are attached, and secret values are redacted from them and
// from the pipeline document.
func (r *Recorder) Scenario(name string, req *schema.PipelineRequest, res *schema.PipelineResult) stest.Scenario {
	sc := Scenario(name, req, res)
	if doc := r.capture(req); doc != nil {
		sc.Pipeline = doc
	}
	sc.Calls = r.Invocations()
	return sc
}

// EncodeScenario writes sc as a block-style YAML document that
// stest.ParseScenarios reads back.
func EncodeScenario(w io.Writer, sc stest.Scenario) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	// JSON is YAML; decoding into a node keeps field order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return enc.Close()
}

// WriteScenario writes sc to path, replacing any existing file.
func WriteScenario(path string, sc stest.Scenario) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scenario file: %w", err)
	}
	if err := EncodeScenario(f, sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Style == yaml.DoubleQuotedStyle && !needsQuotes(n.Value) {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// needsQuotes reports whether a string scalar would change type or meaning
// if written plain.
func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return true
	}
	str, ok := v.(string)
	return !ok || str != s
}
