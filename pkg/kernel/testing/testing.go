// Package testing implements the scenario test harness. A scenario pairs a
// pipeline request with expectations on its result; the runner executes
// each scenario against a fresh registry and evaluates the expectations.
package testing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stepwise/pkg/kernel/eval"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Scenario is one pipeline test case.
type Scenario struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	// Pipeline is the request document, validated when the scenario runs.
	Pipeline any    `json:"pipeline"`
	Expect   Expect `json:"expect"`
	// Calls are the command invocations captured when the scenario was
	// recorded. They document the run and are not asserted.
	Calls []Call `json:"calls,omitempty"`
}

// Call is one captured command invocation.
type Call struct {
	Command string `json:"command"`
	Input   any    `json:"input,omitempty"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Expect declares what to assert about a pipeline result.
// All fields are optional; omitted fields produce no assertions.
type Expect struct {
	// Invalid expects Execute to reject the request.
	Invalid bool                `json:"invalid,omitempty"`
	Steps   []schema.StepStatus `json:"steps,omitempty"`
	// Codes lists expected error codes by step index; "" is not checked.
	Codes          []string `json:"codes,omitempty"`
	CompletedSteps *int     `json:"completedSteps,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	// Data maps a dotted path into the result data to its expected value.
	// A string of the form /pattern/ is matched as a regular expression.
	Data map[string]any `json:"data,omitempty"`
}

// LoadScenarios loads every scenario in a YAML file. A file may hold
// several scenarios as separate YAML documents.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios parses a multi-document YAML stream of scenarios.
func ParseScenarios(data []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []Scenario
	for i := 0; ; i++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse scenario %d: %w", i, err)
		}
		doc, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
		var s Scenario
		if err := schema.DecodeYAML(doc, &s); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("scenario-%d", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// AssertionResult is the result of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"` // step_status, error_code, completed_steps, confidence, data, invalid
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// Evaluate checks exp against a pipeline result. A nil res means Execute
// rejected the request with reqErr.
func Evaluate(exp Expect, res *schema.PipelineResult, reqErr error) []AssertionResult {
	if exp.Invalid || res == nil {
		actual := "accepted"
		if reqErr != nil {
			actual = "rejected"
		}
		return []AssertionResult{{
			Type:     "invalid",
			Expected: boolTo(exp.Invalid, "rejected", "accepted"),
			Actual:   actual,
			Passed:   exp.Invalid == (reqErr != nil),
			Message:  errMessage(reqErr),
		}}
	}

	var results []AssertionResult

	if exp.Steps != nil {
		if len(exp.Steps) != len(res.Steps) {
			results = append(results, AssertionResult{
				Type:     "step_status",
				Expected: strconv.Itoa(len(exp.Steps)) + " steps",
				Actual:   strconv.Itoa(len(res.Steps)) + " steps",
				Message:  "step count mismatch",
			})
		}
		for i, want := range exp.Steps {
			got := "missing"
			if i < len(res.Steps) {
				got = string(res.Steps[i].Status())
			}
			results = append(results, AssertionResult{
				Type:     "step_status",
				Key:      strconv.Itoa(i),
				Expected: string(want),
				Actual:   got,
				Passed:   got == string(want),
				Message:  fmt.Sprintf("step %d: expected %q, got %q", i, want, got),
			})
		}
	}

	for i, want := range exp.Codes {
		if want == "" {
			continue
		}
		got := ""
		if i < len(res.Steps) {
			if cerr := res.Steps[i].Err(); cerr != nil {
				got = cerr.Code
			}
		}
		results = append(results, AssertionResult{
			Type:     "error_code",
			Key:      strconv.Itoa(i),
			Expected: want,
			Actual:   got,
			Passed:   got == want,
			Message:  fmt.Sprintf("step %d code: expected %q, got %q", i, want, got),
		})
	}

	if exp.CompletedSteps != nil {
		got := res.Metadata.CompletedSteps
		results = append(results, AssertionResult{
			Type:     "completed_steps",
			Expected: strconv.Itoa(*exp.CompletedSteps),
			Actual:   strconv.Itoa(got),
			Passed:   got == *exp.CompletedSteps,
		})
	}

	if exp.Confidence != nil {
		got := res.Metadata.Confidence
		results = append(results, AssertionResult{
			Type:     "confidence",
			Expected: formatFloat(*exp.Confidence),
			Actual:   formatFloat(got),
			Passed:   got == *exp.Confidence,
		})
	}

	paths := make([]string, 0, len(exp.Data))
	for p := range exp.Data {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		want := exp.Data[p]
		got, ok := eval.Lookup(res.Data, p)
		actual := "<undefined>"
		if ok {
			actual = fmt.Sprint(got)
		}
		results = append(results, AssertionResult{
			Type:     "data",
			Key:      p,
			Expected: fmt.Sprint(want),
			Actual:   actual,
			Passed:   ok && matchValue(want, got),
			Message:  fmt.Sprintf("data %q: expected %v, got %s", p, want, actual),
		})
	}

	return results
}

// HasFailures returns true if any assertion failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// matchValue supports two match modes:
//   - /pattern/ → regex match against the value's string form
//   - JSON value equality (default)
func matchValue(expected, actual any) bool {
	if s, ok := expected.(string); ok && len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(actual))
	}
	return eval.Equal(expected, actual)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func boolTo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
