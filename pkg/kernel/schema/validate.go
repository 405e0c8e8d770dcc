package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Problem is a single reason a request is malformed.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RequestError reports a malformed PipelineRequest. It is the only error
// the engine returns; step-level failures are results, not errors.
type RequestError struct {
	Problems []Problem `json:"problems"`
}

func (e *RequestError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Path != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", p.Path, p.Message))
		} else {
			msgs = append(msgs, p.Message)
		}
	}
	return "malformed pipeline request: " + strings.Join(msgs, "; ")
}

// IsRequestError reports whether err is (or wraps) a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// Validate checks the semantic rules a request must satisfy before any step
// runs: every step names a command, and aliases are unique, non-empty and
// free of path separators.
func Validate(req *PipelineRequest) error {
	if req == nil {
		return &RequestError{Problems: []Problem{{Message: "request is nil"}}}
	}
	var problems []Problem
	bound := make(map[string]int)
	for i, step := range req.Steps {
		path := fmt.Sprintf("steps/%d", i)
		if strings.TrimSpace(step.Command) == "" {
			problems = append(problems, Problem{Path: path + "/command", Message: "command is required"})
		}
		if step.As == "" {
			continue
		}
		if strings.Contains(step.As, ".") {
			problems = append(problems, Problem{Path: path + "/as", Message: fmt.Sprintf("alias %q must not contain '.'", step.As)})
		}
		if prev, ok := bound[step.As]; ok {
			problems = append(problems, Problem{
				Path:    path + "/as",
				Message: fmt.Sprintf("alias %q already bound by step %d", step.As, prev),
			})
			continue
		}
		bound[step.As] = i
	}
	if len(problems) > 0 {
		return &RequestError{Problems: problems}
	}
	return nil
}

var (
	requestSchemaOnce sync.Once
	requestSchema     *sjsonschema.Schema
	requestSchemaErr  error
)

func compiledRequestSchema() (*sjsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		schemaJSON, err := GenerateRequestJSONSchema()
		if err != nil {
			requestSchemaErr = err
			return
		}
		var schemaDoc any
		if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
			requestSchemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(RequestSchemaID, schemaDoc); err != nil {
			requestSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		requestSchema, requestSchemaErr = c.Compile(RequestSchemaID)
	})
	return requestSchema, requestSchemaErr
}

// ValidateDocument checks a decoded JSON value against the request schema.
func ValidateDocument(doc any) error {
	sch, err := compiledRequestSchema()
	if err != nil {
		return fmt.Errorf("compile request schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if errors.As(err, &ve) {
			return &RequestError{Problems: validationProblems(ve)}
		}
		return &RequestError{Problems: []Problem{{Message: err.Error()}}}
	}
	return nil
}

func validationProblems(ve *sjsonschema.ValidationError) []Problem {
	var problems []Problem
	for _, cause := range flattenValidationErrors(ve) {
		problems = append(problems, Problem{
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return problems
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
