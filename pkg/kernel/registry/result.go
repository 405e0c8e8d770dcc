package registry

import (
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Result is what an operation returns: either
// {success: true, data, confidence?, reasoning?} or
// {success: false, error: {code, message, suggestion?}}.
type Result struct {
	Success    bool                 `json:"success"`
	Data       any                  `json:"data,omitempty"`
	Error      *schema.CommandError `json:"error,omitempty"`
	Confidence *float64             `json:"confidence,omitempty"`
	Reasoning  string               `json:"reasoning,omitempty"`
}

// OK returns a success result.
func OK(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail returns a failure result.
func Fail(code, message string) *Result {
	return &Result{Success: false, Error: &schema.CommandError{Code: code, Message: message}}
}

// WithConfidence sets the confidence score and returns r.
func (r *Result) WithConfidence(c float64) *Result {
	r.Confidence = &c
	return r
}

// WithReasoning sets the reasoning and returns r.
func (r *Result) WithReasoning(s string) *Result {
	r.Reasoning = s
	return r
}

// WithSuggestion sets the failure suggestion and returns r.
func (r *Result) WithSuggestion(s string) *Result {
	if r.Error != nil {
		r.Error.Suggestion = s
	}
	return r
}
