// Package schema defines the pipeline request and result types.
package schema

import (
	"encoding/json"
)

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

// PipelineRequest is an ordered list of steps plus pipeline-wide options.
// Step order is fixed at submission time and never changes.
type PipelineRequest struct {
	Steps   []Step  `yaml:"steps"             json:"steps"`
	Options Options `yaml:"options,omitempty" json:"options,omitempty"`
}

// Options holds pipeline-wide execution options.
type Options struct {
	// ContinueOnFailure keeps running later steps after a failure.
	// Nil means "use the engine default" (false unless configured).
	ContinueOnFailure *bool `yaml:"continueOnFailure,omitempty" json:"continueOnFailure,omitempty"`
}

// ContinueOnFailureOr returns the explicit option value, or def when unset.
func (o Options) ContinueOnFailureOr(def bool) bool {
	if o.ContinueOnFailure == nil {
		return def
	}
	return *o.ContinueOnFailure
}

// Step is one command invocation inside a pipeline.
type Step struct {
	Command string         `yaml:"command"        json:"command" jsonschema:"minLength=1"`
	Input   any            `yaml:"input,omitempty" json:"input,omitempty"`
	As      string         `yaml:"as,omitempty"   json:"as,omitempty" jsonschema:"minLength=1,pattern=^[^.]+$"`
	When    map[string]any `yaml:"when,omitempty" json:"when,omitempty"`
}

// ---------------------------------------------------------------------------
// Step results
// ---------------------------------------------------------------------------

// StepStatus is the terminal status of a step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailure StepStatus = "failure"
	StatusSkipped StepStatus = "skipped"
)

// SkipReason says why a step was not invoked.
type SkipReason string

const (
	// SkipPolicy: an earlier step failed and continueOnFailure is off.
	SkipPolicy SkipReason = "policy"
	// SkipCondition: the step's when predicate evaluated false.
	SkipCondition SkipReason = "condition"
)

// Outcome is the sum type carried by a StepResult: exactly one of
// Success, Failure or Skipped.
type Outcome interface {
	Status() StepStatus
	isOutcome()
}

// Success carries the operation's payload.
type Success struct {
	Data any
}

// Failure carries the structured error.
type Failure struct {
	Error *CommandError
}

// Skipped marks a step that was never invoked.
type Skipped struct {
	Reason SkipReason
}

func (Success) Status() StepStatus { return StatusSuccess }
func (Failure) Status() StepStatus { return StatusFailure }
func (Skipped) Status() StepStatus { return StatusSkipped }

func (Success) isOutcome() {}
func (Failure) isOutcome() {}
func (Skipped) isOutcome() {}

// CommandError is the structured failure description returned by a command
// or produced by the engine itself.
type CommandError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Engine-originated error codes. Commands may use any code of their own.
const (
	CodeCommandNotFound = "COMMAND_NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeCommand         = "COMMAND_ERROR"
	CodeCondition       = "CONDITION_ERROR"
	CodeCancelled       = "CANCELLED"
)

// StepResult is the per-step execution record. It is assigned once and
// never mutated afterwards.
type StepResult struct {
	Command         string
	Outcome         Outcome
	Confidence      *float64
	Reasoning       string
	ExecutionTimeMs float64
}

// Status returns the outcome status.
func (r StepResult) Status() StepStatus {
	if r.Outcome == nil {
		return StatusSkipped
	}
	return r.Outcome.Status()
}

// Data returns the success payload, if any.
func (r StepResult) Data() (any, bool) {
	if s, ok := r.Outcome.(Success); ok {
		return s.Data, true
	}
	return nil, false
}

// Err returns the failure description, if any.
func (r StepResult) Err() *CommandError {
	if f, ok := r.Outcome.(Failure); ok {
		return f.Error
	}
	return nil
}

type stepResultJSON struct {
	Command         string        `json:"command"`
	Status          StepStatus    `json:"status"`
	Data            any           `json:"data,omitempty"`
	Error           *CommandError `json:"error,omitempty"`
	SkipReason      SkipReason    `json:"skipReason,omitempty"`
	Confidence      *float64      `json:"confidence,omitempty"`
	Reasoning       string        `json:"reasoning,omitempty"`
	ExecutionTimeMs float64       `json:"executionTimeMs"`
}

// MarshalJSON flattens the outcome into the wire shape
// {status, data?, error?, confidence?, reasoning?, executionTimeMs}.
func (r StepResult) MarshalJSON() ([]byte, error) {
	out := stepResultJSON{
		Command:         r.Command,
		Status:          r.Status(),
		Confidence:      r.Confidence,
		Reasoning:       r.Reasoning,
		ExecutionTimeMs: r.ExecutionTimeMs,
	}
	switch o := r.Outcome.(type) {
	case Success:
		out.Data = o.Data
	case Failure:
		out.Error = o.Error
	case Skipped:
		out.SkipReason = o.Reason
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the outcome from the wire shape.
func (r *StepResult) UnmarshalJSON(data []byte) error {
	var in stepResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = StepResult{
		Command:         in.Command,
		Confidence:      in.Confidence,
		Reasoning:       in.Reasoning,
		ExecutionTimeMs: in.ExecutionTimeMs,
	}
	switch in.Status {
	case StatusSuccess:
		r.Outcome = Success{Data: in.Data}
	case StatusFailure:
		r.Outcome = Failure{Error: in.Error}
	default:
		r.Outcome = Skipped{Reason: in.SkipReason}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pipeline result
// ---------------------------------------------------------------------------

// PipelineResult is the aggregate value returned to the caller.
type PipelineResult struct {
	RunID    string       `json:"runId,omitempty"`
	Data     any          `json:"data,omitempty"`
	Steps    []StepResult `json:"steps"`
	Metadata Metadata     `json:"metadata"`
}

// Failed reports whether any step ended in failure.
func (r *PipelineResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Status() == StatusFailure {
			return true
		}
	}
	return false
}

// Metadata is the aggregated trust and timing information.
type Metadata struct {
	Confidence          float64          `json:"confidence"`
	Reasoning           []ReasoningEntry `json:"reasoning"`
	ConfidenceBreakdown []float64        `json:"confidenceBreakdown"`
	CompletedSteps      int              `json:"completedSteps"`
	ExecutionTimeMs     float64          `json:"executionTimeMs"`
}

// ReasoningEntry pairs a command with the reasoning it surfaced.
type ReasoningEntry struct {
	Command   string `json:"command"`
	Reasoning string `json:"reasoning"`
}
