package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// TestResult is the result of running one scenario.
type TestResult struct {
	Name       string            `json:"name"`
	Status     string            `json:"status"` // passed, failed, error
	DurationMs int64             `json:"duration_ms"`
	Assertions []AssertionResult `json:"assertions,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// TestSummary aggregates counts across scenarios.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// TestOutput is the top-level output of a test run.
type TestOutput struct {
	File      string       `json:"file,omitempty"`
	Scenarios []TestResult `json:"scenarios"`
	Summary   TestSummary  `json:"summary"`
}

// Failed reports whether any scenario failed or errored.
func (o *TestOutput) Failed() bool {
	return o.Summary.Failed > 0 || o.Summary.Errors > 0
}

// RegistryFactory builds the registry a scenario runs against. It is
// called once per scenario so scenarios never share state.
type RegistryFactory func() (registry.Lookup, error)

// Runner executes scenarios.
type Runner struct {
	NewRegistry RegistryFactory
	// Engine is the base engine configuration; Clock and Trace may be set
	// for deterministic runs.
	Engine   engine.Config
	Timeout  time.Duration
	FailFast bool
}

// RunFile loads and runs every scenario in a file.
func (r *Runner) RunFile(ctx context.Context, path string) (*TestOutput, error) {
	scenarios, err := LoadScenarios(path)
	if err != nil {
		return nil, err
	}
	out := r.Run(ctx, scenarios)
	out.File = path
	return out, nil
}

// Run executes scenarios in order.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) *TestOutput {
	out := &TestOutput{Scenarios: []TestResult{}}
	for _, sc := range scenarios {
		result := r.RunScenario(ctx, sc)
		out.Scenarios = append(out.Scenarios, result)

		switch result.Status {
		case "passed":
			out.Summary.Passed++
		case "failed":
			out.Summary.Failed++
		case "error":
			out.Summary.Errors++
		}
		out.Summary.Total++

		if r.FailFast && result.Status != "passed" {
			break
		}
	}
	return out
}

// RunScenario executes one scenario and evaluates its expectations.
func (r *Runner) RunScenario(ctx context.Context, sc Scenario) TestResult {
	start := time.Now()
	errorResult := func(format string, args ...any) TestResult {
		return TestResult{
			Name:       sc.Name,
			Status:     "error",
			DurationMs: time.Since(start).Milliseconds(),
			Error:      fmt.Sprintf(format, args...),
		}
	}

	if r.NewRegistry == nil {
		return errorResult("runner has no registry factory")
	}
	reg, err := r.NewRegistry()
	if err != nil {
		return errorResult("build registry: %s", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var (
		res    *schema.PipelineResult
		reqErr error
	)
	req, err := schema.FromDocument(sc.Pipeline)
	if err != nil {
		if !schema.IsRequestError(err) {
			return errorResult("load pipeline: %s", err)
		}
		reqErr = err
	} else {
		res, reqErr = engine.New(reg, r.Engine).Execute(ctx, req)
	}

	if reqErr != nil && !sc.Expect.Invalid {
		return errorResult("%s", reqErr)
	}

	assertions := Evaluate(sc.Expect, res, reqErr)
	status := "passed"
	if HasFailures(assertions) {
		status = "failed"
	}
	return TestResult{
		Name:       sc.Name,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
		Assertions: assertions,
	}
}
