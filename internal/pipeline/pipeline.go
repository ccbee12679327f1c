// Package pipeline wires extraction, inference, description and rendering
// into one run per input file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/extract"
	"github.com/rendis/flowsketch/internal/inference"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/internal/observability"
	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

// ContentExtractor reads a source file into model-ready content.
type ContentExtractor interface {
	Extract(ctx context.Context, path string) (*extract.Content, error)
}

// GraphInferrer turns content into a graph with one model call.
type GraphInferrer interface {
	Infer(ctx context.Context, c *extract.Content) inference.Outcome
}

// Deps are the collaborators of a Pipeline. Extractor, Inference and
// Renderer are required.
type Deps struct {
	Extractor ContentExtractor
	Inference GraphInferrer
	Renderer  render.Renderer
	Logger    *slog.Logger
	Spans     observability.SpanManager
	Metrics   observability.MetricsRecorder
	// Closers are released by Close, typically the model client.
	Closers []io.Closer
}

// Options tunes a Pipeline.
type Options struct {
	Diagram diagram.Options
	// OutputDir receives workflow.mmd and workflow.png. Empty means the
	// directory of the input file.
	OutputDir string
	// Open shows the rendered image with the platform viewer.
	Open     bool
	Platform render.Platform
}

// Result describes one completed run.
type Result struct {
	RunID       string                `json:"run_id"`
	Source      string                `json:"source"`
	Kind        extract.Kind          `json:"kind"`
	Graph       *schema.WorkflowGraph `json:"graph"`
	Description diagram.Description   `json:"-"`
	ImagePath   string                `json:"image_path"`
	// Degraded is set when inference failed and the error graph was drawn.
	Degraded  bool          `json:"degraded"`
	Failure   error         `json:"-"`
	Truncated bool          `json:"truncated,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Pipeline runs documents and images through to a rendered diagram.
// It is safe for concurrent use when every concurrent run writes to its own
// output directory.
type Pipeline struct {
	extractor ContentExtractor
	inference GraphInferrer
	renderer  render.Renderer
	logger    *slog.Logger
	spans     observability.SpanManager
	metrics   observability.MetricsRecorder
	closers   []io.Closer
	opts      Options

	closeOnce sync.Once
	closeErr  error
}

// New creates a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, schema.NewError(schema.ErrCodeConfig, "pipeline requires an extractor")
	case deps.Inference == nil:
		return nil, schema.NewError(schema.ErrCodeConfig, "pipeline requires an inference service")
	case deps.Renderer == nil:
		return nil, schema.NewError(schema.ErrCodeConfig, "pipeline requires a renderer")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Spans == nil {
		deps.Spans = observability.NoopSpanManager{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	return &Pipeline{
		extractor: deps.Extractor,
		inference: deps.Inference,
		renderer:  deps.Renderer,
		logger:    deps.Logger,
		spans:     deps.Spans,
		metrics:   deps.Metrics,
		closers:   deps.Closers,
		opts:      opts,
	}, nil
}

// Run processes the file at path, writing outputs to Options.OutputDir.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	return p.RunInto(ctx, path, p.opts.OutputDir)
}

// RunLatest processes the most recently modified eligible file in dir.
func (p *Pipeline) RunLatest(ctx context.Context, dir string) (*Result, error) {
	path, err := NewWorkspace(dir).Latest()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, path)
}

// RunInto processes the file at path and writes outputs to outDir. An empty
// outDir means the directory of path.
//
// Unsupported formats, extraction failures and render failures are returned
// as errors. Inference failures are not: the run completes with the error
// graph and Result.Degraded set.
func (p *Pipeline) RunInto(ctx context.Context, path, outDir string) (res *Result, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.LogWith(ctx, p.logger)

	start := time.Now()
	ctx, runSpan := p.spans.StartRunSpan(ctx, runID, filepath.Base(path))
	res = &Result{RunID: runID, Source: path}
	defer func() {
		res.Elapsed = time.Since(start)
		p.spans.EndSpan(runSpan, err)
		p.metrics.RecordRun(ctx, string(res.Kind), res.Degraded, res.Elapsed, err)
		if err != nil {
			log.Error("run failed", "source", path, "error", err, "elapsed", res.Elapsed)
			res = nil
		}
	}()

	kind, err := extract.Detect(path)
	if err != nil {
		return res, err
	}
	res.Kind = kind
	log.Info("processing", "source", path, "kind", kind)

	var content *extract.Content
	err = p.stage(ctx, schema.StageExtract, func(ctx context.Context) error {
		var xerr error
		content, xerr = p.extractor.Extract(ctx, path)
		return xerr
	})
	if err != nil {
		return res, err
	}

	var outcome inference.Outcome
	_ = p.stage(ctx, schema.StageInfer, func(ctx context.Context) error {
		outcome = p.inference.Infer(ctx, content)
		return outcome.Result.Err()
	})
	if cerr := ctx.Err(); cerr != nil {
		return res, cerr
	}
	res.Graph = outcome.Result.OrErrorGraph()
	res.Truncated = outcome.Truncated
	res.Warnings = append(res.Warnings, outcome.Warnings...)
	if !outcome.Result.Ok() {
		res.Degraded = true
		res.Failure = outcome.Result.Err()
		log.Warn("inference failed, drawing error graph", "error", res.Failure)
	}

	_ = p.stage(ctx, schema.StageDescribe, func(context.Context) error {
		res.Description = diagram.Build(res.Graph, p.opts.Diagram)
		return nil
	})
	for _, e := range res.Description.Dropped {
		res.Warnings = append(res.Warnings, fmt.Sprintf("edge %q -> %q dropped: endpoint matches no node", e.From, e.To))
	}
	if n := len(res.Description.Dropped); n > 0 {
		log.Warn("dropped dangling edges", "count", n)
	}

	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err = os.MkdirAll(outDir, 0o755); err != nil {
		return res, schema.NewError(schema.ErrCodeRender, "could not create output directory").
			WithStage(schema.StageRender).WithCause(err)
	}

	err = p.stage(ctx, schema.StageRender, func(ctx context.Context) error {
		var rerr error
		res.ImagePath, rerr = p.renderer.Render(ctx, render.Job{
			Graph:       res.Graph,
			Description: res.Description,
			Dir:         outDir,
		})
		return rerr
	})
	if err != nil {
		return res, err
	}

	log.Info("run complete", "image", res.ImagePath, "nodes", len(res.Graph.Nodes),
		"degraded", res.Degraded, "elapsed", time.Since(start))
	if p.opts.Open {
		render.Open(p.opts.Platform, res.ImagePath, log)
	}
	return res, nil
}

// stage runs fn under a stage span and records its latency.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx = logging.WithStage(ctx, name)
	ctx, span := p.spans.StartStageSpan(ctx, name)
	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordStage(ctx, name, time.Since(start), err)
	p.spans.EndSpan(span, err)
	return err
}

// Close releases the pipeline's clients. It is idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, c := range p.closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
