package validation

import "github.com/rendis/flowsketch/pkg/schema"

// Validator checks model output before it becomes a WorkflowGraph.
// ValidateJSON enforces structure on the raw candidate document;
// CheckGraph reports non-fatal issues on the projected graph.
type Validator interface {
	ValidateJSON(raw []byte) error
	CheckGraph(g *schema.WorkflowGraph) *schema.ValidationResult
}
