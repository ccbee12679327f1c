package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/pipeline"
	"github.com/rendis/flowsketch/pkg/schema"
)

// Output formats of flowsketch.diagram.
const (
	FormatImage   = "image"
	FormatMermaid = "mermaid"
	FormatGraph   = "graph"
)

// handleDiagram runs a local file through the pipeline in a throwaway
// scratch directory and returns one representation of the result.
func (s *FlowsketchServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError("file_path is required"), nil
	}
	format := req.GetString("format", FormatImage)
	switch format {
	case FormatImage, FormatMermaid, FormatGraph:
	default:
		return mcp.NewToolResultError("format must be image, mermaid, or graph"), nil
	}
	if s.pipeline == nil {
		return mcp.NewToolResultError("diagram pipeline is not configured"), nil
	}

	resolved, err := s.confinement.Check(path)
	if err != nil {
		return toolError(err), nil
	}

	root := s.scratchRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "mcp-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create scratch directory: %v", err)), nil
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("scratch cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	res, err := s.pipeline.RunInto(ctx, resolved, dir)
	if err != nil {
		return toolError(err), nil
	}
	s.logger.Info("mcp diagram",
		"run_id", res.RunID,
		"format", format,
		"nodes", res.Description.Nodes,
		"degraded", res.Degraded,
	)

	switch format {
	case FormatMermaid:
		return mcp.NewToolResultText(res.Description.Text), nil
	case FormatGraph:
		return marshalResult(res)
	default:
		data, readErr := os.ReadFile(res.ImagePath)
		if readErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read rendered image: %v", readErr)), nil
		}
		return mcp.NewToolResultImage(summary(res), base64.StdEncoding.EncodeToString(data), "image/png"), nil
	}
}

// handleDescribe compiles a caller-supplied graph into Mermaid text without
// calling a model or a renderer.
func (s *FlowsketchServer) handleDescribe(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["graph"]
	if !ok || raw == nil {
		return mcp.NewToolResultError("graph is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", err)), nil
	}
	if err := s.validator.ValidateJSON(data); err != nil {
		return toolError(err), nil
	}
	var g schema.WorkflowGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", err)), nil
	}

	opts := s.diagram
	opts.WrapWidth = req.GetInt("wrap_width", opts.WrapWidth)
	desc := diagram.Build(&g, opts)

	result := mcp.NewToolResultText(desc.Text)
	warnings := s.validator.CheckGraph(&g).Messages()
	for _, e := range desc.Dropped {
		warnings = append(warnings, fmt.Sprintf("dropped edge %s -> %s: unknown endpoint", e.From, e.To))
	}
	if len(warnings) > 0 {
		result.Content = append(result.Content, mcp.NewTextContent("warnings:\n- "+strings.Join(warnings, "\n- ")))
	}
	return result, nil
}

func summary(res *pipeline.Result) string {
	text := fmt.Sprintf("%d nodes, %d edges", res.Description.Nodes, res.Description.Edges)
	if res.Degraded {
		text += "; inference failed, showing the error diagram"
	}
	if res.Truncated {
		text += "; input text was truncated"
	}
	return text
}

// toolError renders err as a tool-level error, keeping its code and hints
// visible to the calling agent.
func toolError(err error) *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(err.Error())
	for _, h := range schema.Hints(err) {
		b.WriteString("\nhint: ")
		b.WriteString(h)
	}
	return mcp.NewToolResultError(b.String())
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowsketch.diagram",
		mcp.WithDescription("Infer a workflow from a local document or image and draw it"),
		mcp.WithString("file_path", mcp.Required(),
			mcp.Description("Path to a .pdf, .docx, .txt, .md or image file readable by the server"),
		),
		mcp.WithString("format",
			mcp.Enum(FormatImage, FormatMermaid, FormatGraph),
			mcp.Description("Output format: image (PNG), mermaid (flowchart text), or graph (run result JSON). Default: image"),
		),
	)
}

func describeTool() mcp.Tool {
	return mcp.NewTool("flowsketch.describe",
		mcp.WithDescription("Compile a workflow graph into Mermaid flowchart text"),
		mcp.WithObject("graph", mcp.Required(),
			mcp.Description(`Graph as {"nodes":[{"id","text","type"}],"edges":[{"from","to","label"}]}; ids are strings, type is core or support`),
		),
		mcp.WithNumber("wrap_width", mcp.Description("Soft label width in characters")),
	)
}
