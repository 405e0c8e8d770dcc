package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// RequestSchemaID is the $id of the exported request schema.
const RequestSchemaID = "https://github.com/ormasoftchile/stepwise/schemas/pipeline-request.json"

// GenerateRequestJSONSchema produces a JSON Schema Draft 2020-12 document
// from the PipelineRequest Go types.
func GenerateRequestJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&PipelineRequest{})
	s.ID = RequestSchemaID
	s.Title = "Pipeline Request"
	s.Description = "An ordered list of command steps executed as one logical unit"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal request schema: %w", err)
	}
	return data, nil
}
