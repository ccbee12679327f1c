package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/isolation"
	"github.com/rendis/flowsketch/internal/pipeline"
	"github.com/rendis/flowsketch/internal/validation"
)

// Runner runs one input file into an output directory.
type Runner interface {
	RunInto(ctx context.Context, path, outDir string) (*pipeline.Result, error)
}

// FlowsketchServerDeps holds the dependencies for creating a FlowsketchServer.
type FlowsketchServerDeps struct {
	Pipeline Runner
	// Confinement limits which files a client may ask to diagram.
	Confinement isolation.Confinement
	// ScratchRoot receives one directory per tool call. Empty means the
	// system temp directory.
	ScratchRoot string
	Diagram     diagram.Options
	Validator   validation.Validator
	Logger      *slog.Logger
	Version     string
}

// FlowsketchServer wraps an MCP server with the diagram tool handlers.
type FlowsketchServer struct {
	pipeline    Runner
	confinement isolation.Confinement
	scratchRoot string
	diagram     diagram.Options
	validator   validation.Validator
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewFlowsketchServer creates a FlowsketchServer with both tools registered.
func NewFlowsketchServer(deps FlowsketchServerDeps) (*FlowsketchServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	v := deps.Validator
	if v == nil {
		gv, err := validation.NewGraphValidator()
		if err != nil {
			return nil, err
		}
		v = gv
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowsketchServer{
		pipeline:    deps.Pipeline,
		confinement: deps.Confinement,
		scratchRoot: deps.ScratchRoot,
		diagram:     deps.Diagram,
		validator:   v,
		logger:      logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowsketch",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("flowsketch draws workflow diagrams. Use flowsketch.diagram to turn a local PDF, DOCX, text file or image into a diagram, and flowsketch.describe to compile a node/edge graph you already have into Mermaid flowchart text."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowsketchServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowsketchServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowsketchServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: describeTool(), Handler: s.handleDescribe},
	}
}
