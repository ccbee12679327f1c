package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowsketch/pkg/schema"
)

// lineBreak joins wrapped label lines inside a Mermaid node.
const lineBreak = "<br>"

var header = []string{
	"%%{init: {'theme': 'default', 'themeVariables': { 'fontSize': '14px', 'fontFamily': 'arial', 'lineWidth': '2px' }}}%%",
	"flowchart LR",
	"    %% Style definitions",
	"    classDef core fill:#e3f2fd,stroke:#1565c0,stroke-width:2px,rx:8,ry:8",
	"    classDef support fill:#f3f3f3,stroke:#78909c,stroke-width:2px,rx:8,ry:8",
	"    classDef error fill:#fdecea,stroke:#c62828,stroke-width:2px,rx:8,ry:8",
	"    %% Link styles",
	"    linkStyle default stroke:#2196f3,stroke-width:2px",
	"",
}

// Options tunes the description builder.
type Options struct {
	// WrapWidth is the soft label width. Zero means DefaultWrapWidth.
	WrapWidth int
	// KeepDangling emits edges whose endpoints match no declared node.
	// Mermaid then draws an implicit node for the unknown id.
	KeepDangling bool
}

// Description is the Mermaid flowchart compiled from a WorkflowGraph.
type Description struct {
	Text    string
	Nodes   int
	Edges   int
	Dropped []schema.Edge
}

func (d Description) String() string {
	return d.Text
}

// Build compiles g into a left-to-right Mermaid flowchart. It is pure and
// deterministic: the same graph always yields byte-identical text.
// A nil graph is treated as empty.
func Build(g *schema.WorkflowGraph, opts Options) Description {
	l := Resolve(g, opts)

	lines := append([]string(nil), header...)
	for _, n := range l.Nodes {
		label := strings.Join(n.Lines, lineBreak)
		lines = append(lines,
			fmt.Sprintf("    %s[\"%s\"]", n.ID, label),
			fmt.Sprintf("    class %s %s", n.ID, n.Class),
		)
	}

	lines = append(lines, "")

	for _, e := range l.Edges {
		lines = append(lines, fmt.Sprintf("    %s --> |\"%s\"| %s", e.From, e.Label, e.To))
	}

	return Description{
		Text:    strings.Join(lines, "\n"),
		Nodes:   len(l.Nodes),
		Edges:   len(l.Edges),
		Dropped: l.Dropped,
	}
}

// Layout is a graph with ids normalized, labels wrapped and escaped, and edge
// endpoints resolved. Every renderer draws from it.
type Layout struct {
	Nodes   []LayoutNode
	Edges   []LayoutEdge
	Dropped []schema.Edge
}

// LayoutNode is a node ready to draw.
type LayoutNode struct {
	ID    string
	Lines []string
	Class schema.NodeType
}

// LayoutEdge connects two LayoutNode ids, or unknown ids with KeepDangling.
type LayoutEdge struct {
	From  string
	To    string
	Label string
}

// Resolve prepares g for drawing.
func Resolve(g *schema.WorkflowGraph, opts Options) Layout {
	if g == nil {
		g = &schema.WorkflowGraph{}
	}
	width := opts.WrapWidth
	if width <= 0 {
		width = DefaultWrapWidth
	}

	l := Layout{Nodes: make([]LayoutNode, 0, len(g.Nodes))}
	for i, node := range g.Nodes {
		id := NormalizeID(node.ID)
		if id == "" {
			id = fmt.Sprintf("unnamed_%d", i+1)
		}
		l.Nodes = append(l.Nodes, LayoutNode{
			ID:    id,
			Lines: Wrap(escapeLabel(node.Text), width),
			Class: styleClass(node.Type),
		})
	}

	aliases := newAliasTable(g.Nodes)
	for _, edge := range g.Edges {
		from, fromOK := aliases.resolve(edge.From)
		to, toOK := aliases.resolve(edge.To)
		if from == "" || to == "" || (!opts.KeepDangling && !(fromOK && toOK)) {
			l.Dropped = append(l.Dropped, edge)
			continue
		}
		label := edge.Label
		if label == "" {
			label = schema.DefaultEdgeLabel
		}
		l.Edges = append(l.Edges, LayoutEdge{From: from, To: to, Label: escapeLabel(label)})
	}
	return l
}

// NormalizeID lower-cases id and replaces spaces with underscores.
// It is applied to node ids and edge endpoints alike.
func NormalizeID(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), " ", "_")
}

// ResolveEndpoint is the key an edge endpoint is matched on. Surrounding
// whitespace from the model is dropped before normalizing.
func ResolveEndpoint(endpoint string) string {
	return NormalizeID(strings.TrimSpace(endpoint))
}

// escapeLabel swaps double quotes for single quotes so labels stay inside
// Mermaid's quoted string syntax.
func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

func styleClass(t schema.NodeType) schema.NodeType {
	if t.Valid() {
		return t
	}
	return schema.NodeCore
}

// aliasTable resolves edge endpoints to declared node ids.
type aliasTable struct {
	declared map[string]bool
	source   map[string]string
}

func newAliasTable(nodes []schema.Node) aliasTable {
	t := aliasTable{
		declared: make(map[string]bool, len(nodes)),
		source:   make(map[string]string, len(nodes)),
	}
	for _, n := range nodes {
		id := NormalizeID(n.ID)
		t.declared[id] = true
		if n.SourceID == "" {
			continue
		}
		src := NormalizeID(n.SourceID)
		if _, seen := t.source[src]; !seen {
			t.source[src] = id
		}
	}
	return t
}

// resolve maps an endpoint to a node id. Endpoints refer to the model's
// original ids, so the source alias wins over a coincidental declared id.
func (t aliasTable) resolve(endpoint string) (string, bool) {
	id := ResolveEndpoint(endpoint)
	if id == "" {
		return "", false
	}
	if target, ok := t.source[id]; ok {
		return target, true
	}
	return id, t.declared[id]
}
