package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/pkg/schema"
)

// Compile-time interface check.
var _ Renderer = (*Graphviz)(nil)

// Graphviz renders in-process with the embedded Graphviz library. It still
// writes workflow.mmd so the run leaves the same artifacts as MermaidCLI.
type Graphviz struct {
	opts   diagram.Options
	logger *slog.Logger
}

// NewGraphviz creates a Graphviz renderer. opts must match the options used
// to build the description so both outputs show the same edges.
func NewGraphviz(opts diagram.Options, logger *slog.Logger) *Graphviz {
	if logger == nil {
		logger = logging.Default()
	}
	return &Graphviz{opts: opts, logger: logger}
}

func (r *Graphviz) Render(ctx context.Context, job Job) (string, error) {
	log := logging.LogWith(logging.WithStage(ctx, schema.StageRender), r.logger)

	if job.Dir == "" {
		return "", renderError("no output directory", nil)
	}
	if err := os.WriteFile(filepath.Join(job.Dir, DescriptionFile), []byte(job.Description.Text), 0o644); err != nil {
		return "", renderError("could not write diagram description", err)
	}

	png, err := renderPNG(ctx, diagram.Resolve(job.Graph, r.opts))
	if err != nil {
		return "", renderError("graphviz render failed", err)
	}

	out := filepath.Join(job.Dir, ImageFile)
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return "", renderError("could not write image", err)
	}
	log.Info("diagram rendered", "path", out, "engine", EngineGraphviz)
	return out, nil
}

func renderPNG(ctx context.Context, l diagram.Layout) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(l.Nodes))
	for _, n := range l.Nodes {
		gn, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("create node %s: %w", n.ID, err)
		}
		gn.SetLabel(strings.Join(n.Lines, "\n"))
		gn.SetShape(cgraph.BoxShape)
		applyClassStyle(gn, n.Class)
		nodes[n.ID] = gn
	}

	for _, e := range l.Edges {
		from, err := nodeFor(graph, nodes, e.From)
		if err != nil {
			return nil, err
		}
		to, err := nodeFor(graph, nodes, e.To)
		if err != nil {
			return nil, err
		}
		ge, err := graph.CreateEdgeByName("", from, to)
		if err != nil {
			return nil, fmt.Errorf("create edge %s->%s: %w", e.From, e.To, err)
		}
		ge.SetLabel(e.Label)
		ge.SetColor("#2196f3")
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// nodeFor returns the node for id, creating a bare one for dangling endpoints
// kept with KeepDangling, as Mermaid would.
func nodeFor(graph *cgraph.Graph, nodes map[string]*cgraph.Node, id string) (*cgraph.Node, error) {
	if n, ok := nodes[id]; ok {
		return n, nil
	}
	n, err := graph.CreateNodeByName(id)
	if err != nil {
		return nil, fmt.Errorf("create node %s: %w", id, err)
	}
	nodes[id] = n
	return n, nil
}

// applyClassStyle mirrors the classDef colors of the Mermaid header.
func applyClassStyle(n *cgraph.Node, class schema.NodeType) {
	n.SetStyle(cgraph.FilledNodeStyle)
	switch class {
	case schema.NodeSupport:
		n.SetFillColor("#f3f3f3")
		n.SetColor("#78909c")
	case schema.NodeError:
		n.SetFillColor("#fdecea")
		n.SetColor("#c62828")
	default:
		n.SetFillColor("#e3f2fd")
		n.SetColor("#1565c0")
	}
}
