// Package inference turns extracted content into a WorkflowGraph with a single
// model call, then recovers, validates and normalizes whatever the model returned.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/flowsketch/internal/extract"
	"github.com/rendis/flowsketch/internal/llm"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/internal/validation"
	"github.com/rendis/flowsketch/pkg/schema"
)

const (
	DefaultMaxTextChars         = 100000
	DefaultImageFallbackChars   = 500
	DefaultImageMaxOutputTokens = 2048
)

// Options tunes the request sent to the model.
type Options struct {
	MaxTextChars         int
	ImageFallbackChars   int
	ImageMaxOutputTokens int
	Sampling             llm.Sampling
}

func (o Options) withDefaults() Options {
	if o.MaxTextChars <= 0 {
		o.MaxTextChars = DefaultMaxTextChars
	}
	if o.ImageFallbackChars <= 0 {
		o.ImageFallbackChars = DefaultImageFallbackChars
	}
	if o.ImageMaxOutputTokens <= 0 {
		o.ImageMaxOutputTokens = DefaultImageMaxOutputTokens
	}
	if o.Sampling == (llm.Sampling{}) {
		o.Sampling = llm.DefaultSampling()
	}
	return o
}

// Outcome is the result of one inference plus what happened along the way.
type Outcome struct {
	Result    schema.GraphResult
	Truncated bool // input text was cut at MaxTextChars
	Repaired  bool // JSON only parsed after quote/newline repair
	Fallback  bool // image response had no JSON; its text became the node
	Warnings  []string
}

// Service runs inference against a Model.
type Service struct {
	model     llm.Model
	validator validation.Validator
	projector *projector
	opts      Options
	logger    *slog.Logger
}

// NewService creates a Service. A nil validator uses the default graph validator.
func NewService(model llm.Model, v validation.Validator, opts Options, logger *slog.Logger) (*Service, error) {
	if model == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "inference requires a model")
	}
	if v == nil {
		gv, err := validation.NewGraphValidator()
		if err != nil {
			return nil, err
		}
		v = gv
	}
	p, err := newProjector()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "projection setup failed").WithCause(err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		model:     model,
		validator: v,
		projector: p,
		opts:      opts.withDefaults(),
		logger:    logger,
	}, nil
}

// Model returns the underlying model.
func (s *Service) Model() llm.Model {
	return s.model
}

// Infer makes exactly one model call for c. Every failure is reported through
// Outcome.Result; Infer itself never returns an error.
func (s *Service) Infer(ctx context.Context, c *extract.Content) Outcome {
	ctx = logging.WithStage(ctx, schema.StageInfer)
	log := logging.LogWith(ctx, s.logger)

	var out Outcome
	if c == nil {
		out.Result = schema.FailGraph(inferenceError("no content to analyze", nil))
		return out
	}

	req, truncated := s.buildRequest(c)
	out.Truncated = truncated
	if truncated {
		log.Warn("document text truncated", "limit", s.opts.MaxTextChars)
	}

	log.Info("requesting analysis", "model", s.model.Name(), "kind", c.Kind)
	resp, err := s.model.Generate(ctx, req)
	if err != nil {
		log.Error("model request failed", "error", err)
		out.Result = schema.FailGraph(inferenceError("model request failed", err))
		return out
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		out.Result = schema.FailGraph(inferenceError("empty response from model", nil))
		return out
	}

	span, found := candidateSpan(text)
	if !found {
		if c.Kind == extract.KindImage {
			log.Warn("no JSON in image response, using response text as single node")
			out.Fallback = true
			out.Result = schema.OkGraph(s.fallbackGraph(text))
			return out
		}
		out.Result = schema.FailGraph(inferenceError("no valid JSON found in response", nil))
		return out
	}

	raw, doc, repaired, err := decodeCandidate(span)
	if err != nil {
		log.Error("response JSON unusable", "error", err)
		out.Result = schema.FailGraph(inferenceError("could not parse JSON from response", err))
		return out
	}
	out.Repaired = repaired
	if repaired {
		log.Warn("response JSON needed repair")
	}

	if err := s.validator.ValidateJSON(raw); err != nil {
		log.Error("response JSON has the wrong shape", "error", err)
		out.Result = schema.FailGraph(inferenceError("response does not describe a graph", err))
		return out
	}

	p, err := s.projector.project(ctx, doc)
	if err != nil {
		out.Result = schema.FailGraph(inferenceError("could not normalize response", err))
		return out
	}

	g := toGraph(p)
	out.Warnings = s.validator.CheckGraph(g).Messages()
	normalizeTypes(g)

	log.Info("analysis complete", "nodes", len(g.Nodes), "edges", len(g.Edges), "warnings", len(out.Warnings))
	out.Result = schema.OkGraph(g)
	return out
}

func (s *Service) buildRequest(c *extract.Content) (llm.Request, bool) {
	req := llm.Request{Sampling: s.opts.Sampling}
	if c.Kind == extract.KindImage {
		req.Prompt = imagePrompt
		req.Image = c.Image
		req.ImageMIME = c.MIMEType
		req.Sampling.MaxOutputTokens = s.opts.ImageMaxOutputTokens
		return req, false
	}

	text, truncated := truncateRunes(c.Text, s.opts.MaxTextChars)
	req.Prompt = documentPrompt + documentSeparator + text
	return req, truncated
}

func (s *Service) fallbackGraph(text string) *schema.WorkflowGraph {
	body, _ := firstRunes(text, s.opts.ImageFallbackChars)
	return &schema.WorkflowGraph{
		Nodes: []schema.Node{{ID: "node_1", Text: strings.TrimSpace(body), Type: schema.NodeCore}},
		Edges: []schema.Edge{},
	}
}

// truncateRunes cuts s to limit runes and appends "..." when it had to cut.
func truncateRunes(s string, limit int) (string, bool) {
	head, cut := firstRunes(s, limit)
	if cut {
		head += "..."
	}
	return head, cut
}

func firstRunes(s string, limit int) (string, bool) {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// toGraph renumbers nodes to node_1..node_n and keeps the model's id as SourceID
// so edges can still be resolved against it.
func toGraph(p *projected) *schema.WorkflowGraph {
	g := &schema.WorkflowGraph{
		Nodes: make([]schema.Node, 0, len(p.Nodes)),
		Edges: make([]schema.Edge, 0, len(p.Edges)),
	}
	for i, n := range p.Nodes {
		g.Nodes = append(g.Nodes, schema.Node{
			ID:       fmt.Sprintf("node_%d", i+1),
			Text:     n.Text,
			Type:     schema.NodeType(n.Type),
			SourceID: n.ID,
		})
	}
	for _, e := range p.Edges {
		label := e.Label
		if label == "" {
			label = schema.DefaultEdgeLabel
		}
		g.Edges = append(g.Edges, schema.Edge{From: e.From, To: e.To, Label: label})
	}
	return g
}

// normalizeTypes maps missing or unknown types to core. The model cannot
// produce error nodes; those are reserved for failure graphs.
func normalizeTypes(g *schema.WorkflowGraph) {
	for i := range g.Nodes {
		if t := g.Nodes[i].Type; t != schema.NodeCore && t != schema.NodeSupport {
			g.Nodes[i].Type = schema.NodeCore
		}
	}
}

func inferenceError(msg string, cause error) *schema.FlowError {
	e := schema.NewError(schema.ErrCodeInference, msg).WithStage(schema.StageInfer)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
