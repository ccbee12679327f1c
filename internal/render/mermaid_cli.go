package render

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/flowsketch/internal/isolation"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/pkg/schema"
)

// DefaultTimeout bounds one Mermaid CLI invocation.
const DefaultTimeout = 2 * time.Minute

// maxStderr caps how much renderer output is kept on an error.
const maxStderr = 4096

// Compile-time interface check.
var _ Renderer = (*MermaidCLI)(nil)

// MermaidCLI renders by shelling out to @mermaid-js/mermaid-cli.
type MermaidCLI struct {
	platform Platform
	runner   isolation.Runner
	logger   *slog.Logger
}

// NewMermaidCLI creates a MermaidCLI. A nil runner gets an ExecRunner with DefaultTimeout.
func NewMermaidCLI(p Platform, runner isolation.Runner, logger *slog.Logger) *MermaidCLI {
	if runner == nil {
		runner = isolation.NewExecRunner(DefaultTimeout)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MermaidCLI{platform: p, runner: runner, logger: logger}
}

// Render writes job.Description to Dir/workflow.mmd and runs the CLI to produce
// Dir/workflow.png. There is no retry.
func (m *MermaidCLI) Render(ctx context.Context, job Job) (string, error) {
	log := logging.LogWith(logging.WithStage(ctx, schema.StageRender), m.logger)

	if job.Dir == "" {
		return "", renderError("no output directory", nil)
	}
	if len(m.platform.Command) == 0 {
		return "", renderError("no renderer command configured", nil)
	}

	in := filepath.Join(job.Dir, DescriptionFile)
	out := filepath.Join(job.Dir, ImageFile)
	if err := os.WriteFile(in, []byte(job.Description.Text), 0o644); err != nil {
		return "", renderError("could not write diagram description", err)
	}
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", renderError("could not clear previous image", err)
	}

	cmd := isolation.Command{
		Path: m.platform.Command[0],
		Args: m.platform.RenderArgs(in, out),
		Dir:  job.Dir,
		Env:  []string{"NODE_OPTIONS=--no-warnings"},
	}
	log.Info("rendering diagram", "command", cmd.String())

	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", renderError("render cancelled", err)
		}
		var stderr []byte
		if res != nil {
			stderr = res.Stderr
		}
		log.Error("renderer failed", "error", err)
		return "", withHints(renderError("renderer failed", err), cmd, stderr)
	}

	info, statErr := os.Stat(out)
	if statErr != nil || info.Size() == 0 {
		log.Error("renderer produced no image", "path", out)
		return "", withHints(renderError("renderer produced no image", statErr), cmd, res.Stderr)
	}

	log.Info("diagram rendered", "path", out, "duration", res.Duration)
	return out, nil
}

func withHints(e *schema.FlowError, cmd isolation.Command, stderr []byte) *schema.FlowError {
	msg := strings.TrimSpace(string(stderr))
	if len(msg) > maxStderr {
		msg = msg[len(msg)-maxStderr:]
	}
	return e.WithDetails(map[string]any{
		"command": cmd.String(),
		"stderr":  msg,
		"hints":   append([]string(nil), TroubleshootingHints...),
	})
}
