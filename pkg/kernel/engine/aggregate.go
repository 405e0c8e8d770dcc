package engine

import (
	"strings"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// Aggregate combines step results into pipeline metadata. It is a pure
// function of its input.
//
// Confidence is the weakest link: the minimum over executed steps, where a
// step that reported no confidence counts as 1.0. Skipped steps are left
// out of the breakdown and contribute 0 to the execution time.
func Aggregate(results []schema.StepResult) schema.Metadata {
	md := schema.Metadata{
		Confidence:          1.0,
		Reasoning:           []schema.ReasoningEntry{},
		ConfidenceBreakdown: []float64{},
	}
	for _, r := range results {
		md.ExecutionTimeMs += r.ExecutionTimeMs

		status := r.Status()
		if status == schema.StatusSkipped {
			continue
		}
		if status == schema.StatusSuccess {
			md.CompletedSteps++
		}

		c := 1.0
		if r.Confidence != nil {
			c = *r.Confidence
		}
		md.ConfidenceBreakdown = append(md.ConfidenceBreakdown, c)
		if c < md.Confidence {
			md.Confidence = c
		}

		if reasoning := strings.TrimSpace(r.Reasoning); reasoning != "" {
			md.Reasoning = append(md.Reasoning, schema.ReasoningEntry{
				Command:   r.Command,
				Reasoning: reasoning,
			})
		}
	}
	return md
}
