package schema

// NodeType controls only the visual styling of a node.
type NodeType string

const (
	NodeCore    NodeType = "core"
	NodeSupport NodeType = "support"
	NodeError   NodeType = "error"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeCore, NodeSupport, NodeError:
		return true
	}
	return false
}

// ErrorNodeID is the id of the single node in a failure graph.
const ErrorNodeID = "error_node"

// DefaultEdgeLabel is used when an edge carries no label.
const DefaultEdgeLabel = "flow"

// WorkflowGraph is the node/edge structure inferred from one document or image.
// Node order is layout order.
type WorkflowGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a single process step.
type Node struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Type NodeType `json:"type,omitempty"`
	// SourceID is the identifier the model gave the node before renumbering.
	// Edges still refer to it.
	SourceID string `json:"source_id,omitempty"`
}

// Edge is a directed flow relationship between two nodes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// ErrorGraph builds the degenerate one-node graph used to report a failure visually.
func ErrorGraph(message string) *WorkflowGraph {
	return &WorkflowGraph{
		Nodes: []Node{{ID: ErrorNodeID, Text: message, Type: NodeError}},
		Edges: []Edge{},
	}
}

// IsErrorGraph reports whether g is a failure graph.
func (g *WorkflowGraph) IsErrorGraph() bool {
	return g != nil && len(g.Nodes) == 1 && len(g.Edges) == 0 &&
		g.Nodes[0].Type == NodeError
}
