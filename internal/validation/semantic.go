package validation

import (
	"fmt"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/pkg/schema"
)

// CheckGraph reports issues that do not stop a graph from rendering:
// unknown node types, empty labels, repeated model ids and edges that
// resolve to no node. Everything is a warning.
func (v *GraphValidator) CheckGraph(g *schema.WorkflowGraph) *schema.ValidationResult {
	return checkGraph(g)
}

func checkGraph(g *schema.WorkflowGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if g == nil || len(g.Nodes) == 0 {
		result.AddWarning("nodes", schema.ErrCodeValidation, "graph has no nodes")
		if g == nil {
			return result
		}
	}

	known := make(map[string]bool, 2*len(g.Nodes))
	seenSource := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		known[diagram.NormalizeID(n.ID)] = true

		if n.Type != "" && !n.Type.Valid() {
			result.AddWarning(path+".type", schema.ErrCodeValidation,
				fmt.Sprintf("unknown type %q, using core", n.Type))
		}
		if n.Text == "" {
			result.AddWarning(path+".text", schema.ErrCodeValidation, "node has no text")
		}
		if n.SourceID == "" {
			continue
		}
		src := diagram.NormalizeID(n.SourceID)
		known[src] = true
		if first, dup := seenSource[src]; dup {
			result.AddWarning(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("model id %q already used by nodes[%d]", n.SourceID, first))
			continue
		}
		seenSource[src] = i
	}

	for i, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if !known[diagram.ResolveEndpoint(e.From)] {
			result.AddWarning(path+".from", schema.ErrCodeValidation,
				fmt.Sprintf("references unknown node %q", e.From))
		}
		if !known[diagram.ResolveEndpoint(e.To)] {
			result.AddWarning(path+".to", schema.ErrCodeValidation,
				fmt.Sprintf("references unknown node %q", e.To))
		}
	}
	return result
}
