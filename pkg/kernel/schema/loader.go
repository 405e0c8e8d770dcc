package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a pipeline request from a YAML or JSON file.
func LoadFile(path string) (*PipelineRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pipeline: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a pipeline request from a reader. The document may be YAML or
// JSON (JSON is a YAML subset). It is checked against the request schema,
// decoded strictly, and then semantically validated.
func Load(r io.Reader) (*PipelineRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a pipeline request document.
func Parse(data []byte) (*PipelineRequest, error) {
	doc, err := toJSONDocument(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// FromDocument validates an already-decoded JSON value (as produced by
// encoding/json) and converts it into a PipelineRequest. Transports that
// receive the request as a generic map use this entry point.
func FromDocument(doc any) (*PipelineRequest, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline: %w", err)
	}
	var req PipelineRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeYAML decodes a YAML (or JSON) document into v by way of its JSON
// form, so values take the same shapes they would have arriving over a
// JSON transport (float64 numbers, map[string]any objects). Unknown fields
// are rejected.
func DecodeYAML(data []byte, v any) error {
	doc, err := toJSONDocument(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("structural decode: %w", err)
	}
	return nil
}

func toJSONDocument(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document is not JSON-compatible: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
