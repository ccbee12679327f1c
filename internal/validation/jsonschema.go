package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rendis/flowsketch/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const candidateSchemaURL = "https://flowsketch.dev/schemas/candidate-graph.json"

// candidateSchemaJSON describes what a model response must look like to be
// projected into a WorkflowGraph. It is deliberately loose on field names
// (aliases are resolved by the projection) and strict on container shapes.
const candidateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowsketch.dev/schemas/candidate-graph.json",
  "type": "object",
  "properties": {
    "nodes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "$defs": {
    "scalar": {
      "type": ["string", "number", "boolean", "null"]
    },
    "node": {
      "type": "object",
      "properties": {
        "id": { "$ref": "#/$defs/scalar" },
        "text": { "$ref": "#/$defs/scalar" },
        "type": { "type": ["string", "null"] }
      }
    },
    "edge": {
      "type": "object",
      "properties": {
        "from": { "$ref": "#/$defs/scalar" },
        "to": { "$ref": "#/$defs/scalar" },
        "source": { "$ref": "#/$defs/scalar" },
        "target": { "$ref": "#/$defs/scalar" },
        "label": { "$ref": "#/$defs/scalar" }
      }
    }
  }
}`

// Compile-time interface check.
var _ Validator = (*GraphValidator)(nil)

// GraphValidator implements Validator with JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type GraphValidator struct {
	candidate *jsonschema.Schema
}

// NewGraphValidator compiles the candidate graph schema.
func NewGraphValidator() (*GraphValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(candidateSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal candidate schema: %w", err)
	}
	if err := c.AddResource(candidateSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add candidate schema resource: %w", err)
	}

	compiled, err := c.Compile(candidateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile candidate schema: %w", err)
	}
	return &GraphValidator{candidate: compiled}, nil
}

// ValidateJSON validates a raw JSON document against the candidate schema.
func (v *GraphValidator) ValidateJSON(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "candidate is not valid JSON").WithCause(err)
	}
	if err := v.candidate.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError listing
// every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("candidate graph has %d structural errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
