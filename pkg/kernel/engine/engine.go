// Package engine implements the sequential pipeline execution engine.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
)

// Clock abstracts time for step timing. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config configures an Engine.
type Config struct {
	// ContinueOnFailure is the default used when a request leaves
	// options.continueOnFailure unset.
	ContinueOnFailure bool
	Logger            *slog.Logger
	Trace             *trace.Writer
	Clock             Clock
}

// Engine executes pipelines against a command registry. It holds no state
// between Execute calls, so one Engine may run many pipelines concurrently.
type Engine struct {
	commands registry.Lookup
	cfg      Config
	logger   *slog.Logger
	clock    Clock
}

// New creates an engine that resolves commands through commands.
func New(commands registry.Lookup, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{
		commands: commands,
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
	}
}

// run carries the per-call state of one Execute.
type run struct {
	id     string
	logger *slog.Logger
}

// Execute runs the request's steps in order and returns the aggregate
// result. Step failures are reported in the result; the returned error is
// non-nil only when the request itself is malformed.
func (e *Engine) Execute(ctx context.Context, req *schema.PipelineRequest) (*schema.PipelineResult, error) {
	if err := schema.Validate(req); err != nil {
		return nil, err
	}

	r := &run{id: uuid.NewString()}
	r.logger = e.logger.With("run_id", r.id)
	continueOnFailure := req.Options.ContinueOnFailureOr(e.cfg.ContinueOnFailure)

	r.logger.Info("pipeline started", "steps", len(req.Steps), "continue_on_failure", continueOnFailure)
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitRunStart(r.id, len(req.Steps), continueOnFailure)
	}
	start := e.clock.Now()

	scope := eval.NewScope()
	results := make([]schema.StepResult, len(req.Steps))
	var (
		failed bool
		data   any
	)

	for i, step := range req.Steps {
		if failed && !continueOnFailure {
			results[i] = skipped(step, schema.SkipPolicy)
			e.recordSkip(r, i, step, schema.SkipPolicy)
			continue
		}

		res := e.runStep(ctx, r, i, step, scope)
		results[i] = res

		// Condition-skipped steps were never attempted and leave the
		// scope as it was.
		switch out := res.Outcome.(type) {
		case schema.Success:
			scope = scope.Bind(step.As, out.Data, true)
			data = out.Data
		case schema.Failure:
			scope = scope.Bind(step.As, nil, false)
			failed = true
		}
	}

	metadata := Aggregate(results)

	r.logger.Info("pipeline completed",
		"completed_steps", metadata.CompletedSteps,
		"confidence", metadata.Confidence,
		"execution_time_ms", metadata.ExecutionTimeMs,
	)
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitRunComplete(r.id, metadata.CompletedSteps, metadata.Confidence, e.clock.Now().Sub(start))
	}

	return &schema.PipelineResult{
		RunID:    r.id,
		Data:     data,
		Steps:    results,
		Metadata: metadata,
	}, nil
}

func (e *Engine) recordSkip(r *run, index int, step schema.Step, reason schema.SkipReason) {
	r.logger.Debug("step skipped", "index", index, "command", step.Command, "reason", string(reason))
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitStepSkipped(r.id, index, step.Command, string(reason))
	}
}

func skipped(step schema.Step, reason schema.SkipReason) schema.StepResult {
	return schema.StepResult{
		Command: step.Command,
		Outcome: schema.Skipped{Reason: reason},
	}
}
