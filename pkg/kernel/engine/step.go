package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
)

// runStep resolves, guards, invokes and records a single step.
func (e *Engine) runStep(ctx context.Context, r *run, index int, step schema.Step, scope *eval.Scope) schema.StepResult {
	input := eval.Resolve(step.Input, scope)

	if len(step.When) > 0 {
		ok, err := eval.EvalWhen(step.When, scope)
		if err != nil {
			return e.finish(r, index, step, failure(schema.CodeCondition, fmt.Sprintf("invalid when: %s", err)), 0, nil)
		}
		if !ok {
			e.recordSkip(r, index, step, schema.SkipCondition)
			return skipped(step, schema.SkipCondition)
		}
	}

	op, ok := e.commands.Lookup(step.Command)
	if !ok {
		f := failure(schema.CodeCommandNotFound, fmt.Sprintf("command %q is not registered", step.Command))
		f.Error.Suggestion = "check the command name against the registry's command list"
		return e.finish(r, index, step, f, 0, nil)
	}

	if err := ctx.Err(); err != nil {
		return e.finish(r, index, step, failure(schema.CodeCancelled, fmt.Sprintf("not started: %s", err)), 0, nil)
	}

	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitStepStart(r.id, index, step.Command)
	}
	start := e.clock.Now()
	res, err := invoke(ctx, op, input)
	elapsed := e.clock.Now().Sub(start)

	if err != nil {
		return e.finish(r, index, step, failure(schema.CodeCommand, err.Error()), elapsed, nil)
	}
	if res == nil {
		return e.finish(r, index, step, failure(schema.CodeCommand, "operation returned no result"), elapsed, nil)
	}
	if !res.Success {
		cerr := res.Error
		if cerr == nil {
			cerr = &schema.CommandError{Code: schema.CodeCommand, Message: "operation failed without an error description"}
		}
		return e.finish(r, index, step, schema.Failure{Error: cerr}, elapsed, nil)
	}

	data, err := eval.Normalize(res.Data)
	if err != nil {
		return e.finish(r, index, step, failure(schema.CodeCommand, err.Error()), elapsed, nil)
	}
	return e.finish(r, index, step, schema.Success{Data: data}, elapsed, res)
}

// invoke calls op, converting a panic into an error.
func invoke(ctx context.Context, op registry.Operation, input any) (res *registry.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return op(ctx, input)
}

// finish builds the StepResult and records it in the log and trace. The
// trust metadata of res is attached only to successful outcomes.
func (e *Engine) finish(r *run, index int, step schema.Step, outcome schema.Outcome, elapsed time.Duration, res *registry.Result) schema.StepResult {
	result := schema.StepResult{
		Command:         step.Command,
		Outcome:         outcome,
		ExecutionTimeMs: float64(elapsed) / float64(time.Millisecond),
	}
	if res != nil {
		result.Confidence = clampConfidence(res.Confidence)
		result.Reasoning = strings.TrimSpace(res.Reasoning)
	}

	attrs := []any{
		"index", index,
		"command", step.Command,
		"status", string(result.Status()),
		"duration_ms", result.ExecutionTimeMs,
	}
	var tf *trace.Failure
	if cerr := result.Err(); cerr != nil {
		attrs = append(attrs, "code", cerr.Code, "error", cerr.Message)
		tf = &trace.Failure{Code: cerr.Code, Message: cerr.Message}
	}
	r.logger.Info("step completed", attrs...)
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitStepComplete(r.id, index, step.Command, string(result.Status()), elapsed, tf)
	}
	return result
}

func failure(code, message string) schema.Failure {
	return schema.Failure{Error: &schema.CommandError{Code: code, Message: message}}
}

// clampConfidence bounds a reported confidence to [0,1]; NaN counts as not
// reported.
func clampConfidence(c *float64) *float64 {
	if c == nil || math.IsNaN(*c) {
		return nil
	}
	v := math.Min(1, math.Max(0, *c))
	return &v
}
