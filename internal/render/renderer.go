// Package render turns a diagram description into a PNG on disk.
package render

import (
	"context"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/pkg/schema"
)

const (
	DescriptionFile = "workflow.mmd"
	ImageFile       = "workflow.png"
)

// Engine names accepted by New.
const (
	EngineMermaid  = "mermaid"
	EngineGraphviz = "graphviz"
)

// TroubleshootingHints are attached to every Mermaid CLI failure.
var TroubleshootingHints = []string{
	"Check if Node.js is installed: node --version",
	"Check if npm is installed: npm --version",
	"Reinstall mermaid-cli: npm install -g @mermaid-js/mermaid-cli",
	"Try running manually: npx @mermaid-js/mermaid-cli -i input.mmd -o output.png",
}

// Job is one render request. Dir receives workflow.mmd and workflow.png.
type Job struct {
	Graph       *schema.WorkflowGraph
	Description diagram.Description
	Dir         string
}

// Renderer writes a PNG for job and returns its path.
type Renderer interface {
	Render(ctx context.Context, job Job) (string, error)
}

func renderError(msg string, cause error) *schema.FlowError {
	e := schema.NewError(schema.ErrCodeRender, msg).WithStage(schema.StageRender)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
