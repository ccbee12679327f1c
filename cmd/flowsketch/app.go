package main

import (
	"io"
	"log/slog"

	"github.com/rendis/flowsketch/internal/config"
	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/extract"
	"github.com/rendis/flowsketch/internal/inference"
	"github.com/rendis/flowsketch/internal/isolation"
	"github.com/rendis/flowsketch/internal/llm"
	"github.com/rendis/flowsketch/internal/observability"
	"github.com/rendis/flowsketch/internal/pipeline"
	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

func diagramOptions(cfg *config.Config) diagram.Options {
	return diagram.Options{
		WrapWidth:    cfg.Diagram.WrapWidth,
		KeepDangling: cfg.Diagram.KeepDangling,
	}
}

func newRenderer(cfg *config.Config, logger *slog.Logger) render.Renderer {
	if cfg.Render.Engine == render.EngineGraphviz {
		return render.NewGraphviz(diagramOptions(cfg), logger)
	}
	platform := render.Current().WithCommand(cfg.Render.Command)
	return render.NewMermaidCLI(platform, isolation.NewExecRunner(cfg.Render.Timeout), logger)
}

// newPipeline wires every stage from cfg. outDir overrides where outputs
// land; empty keeps them next to the input.
func newPipeline(cfg *config.Config, logger *slog.Logger, outDir string) (*pipeline.Pipeline, error) {
	model, err := llm.New(cfg.Model.Provider, llm.ClientOptions{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "model setup failed").WithCause(err)
	}

	svc, err := inference.NewService(model, nil, inference.Options{
		MaxTextChars: cfg.Extract.MaxTextChars,
	}, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Extractor: extract.New(extract.Options{
			MaxImageDim: cfg.Extract.MaxImageDim,
			MaxFileSize: cfg.Extract.MaxFileSize,
		}, logger),
		Inference: svc,
		Renderer:  newRenderer(cfg, logger),
		Logger:    logger,
	}
	if c, ok := model.(io.Closer); ok {
		deps.Closers = append(deps.Closers, c)
	}

	if cfg.Observability.Enabled {
		metrics, err := observability.NewMetricsRecorder(nil)
		if err != nil {
			return nil, err
		}
		deps.Spans = observability.NewSpanManager(nil)
		deps.Metrics = metrics
	}

	return pipeline.New(deps, pipeline.Options{
		Diagram:   diagramOptions(cfg),
		OutputDir: outDir,
		Open:      cfg.Render.Open,
		Platform:  render.Current(),
	})
}
