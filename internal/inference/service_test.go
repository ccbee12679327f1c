package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowsketch/internal/extract"
	"github.com/rendis/flowsketch/internal/llm"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/pkg/schema"
)

type fakeModel struct {
	text  string
	err   error
	calls []llm.Request
}

func (m *fakeModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.text, Model: "fake"}, nil
}

func (m *fakeModel) Name() string { return "fake" }

func newService(t *testing.T, m llm.Model, opts Options) *Service {
	t.Helper()
	s, err := NewService(m, nil, opts, logging.Discard())
	require.NoError(t, err)
	return s
}

func textContent(s string) *extract.Content {
	return &extract.Content{Kind: extract.KindText, Text: s, Source: "doc.txt"}
}

func imageContent() *extract.Content {
	return &extract.Content{Kind: extract.KindImage, Image: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png", Source: "shot.png"}
}

func TestInferProseWrappedJSON(t *testing.T) {
	m := &fakeModel{text: `Here is the diagram:
{"nodes":[{"id":"intake","text":"Receive claims","type":"core"},{"id":"audit","text":"Audit trail","type":"support"}],
 "edges":[{"from":"intake","to":"audit"}]}
Hope this helps.`}
	s := newService(t, m, Options{})

	out := s.Infer(context.Background(), textContent("claims handling"))
	g, err := out.Result.Unwrap()
	require.NoError(t, err)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, schema.Node{ID: "node_1", Text: "Receive claims", Type: schema.NodeCore, SourceID: "intake"}, g.Nodes[0])
	assert.Equal(t, schema.Node{ID: "node_2", Text: "Audit trail", Type: schema.NodeSupport, SourceID: "audit"}, g.Nodes[1])
	require.Len(t, g.Edges, 1)
	assert.Equal(t, schema.Edge{From: "intake", To: "audit", Label: "flow"}, g.Edges[0])
	assert.False(t, out.Repaired)
	assert.False(t, out.Truncated)
	assert.Empty(t, out.Warnings)
}

func TestInferSendsOneRequest(t *testing.T) {
	m := &fakeModel{text: `{"nodes":[],"edges":[]}`}
	s := newService(t, m, Options{})

	s.Infer(context.Background(), textContent("body text"))
	require.Len(t, m.calls, 1)

	req := m.calls[0]
	assert.True(t, strings.HasPrefix(req.Prompt, documentPrompt))
	assert.True(t, strings.HasSuffix(req.Prompt, "\n\nDocument text:\nbody text"))
	assert.Nil(t, req.Image)
	assert.Equal(t, llm.DefaultSampling(), req.Sampling)
}

func TestInferImageRequest(t *testing.T) {
	m := &fakeModel{text: `{"nodes":[{"id":"a","text":"A"}]}`}
	s := newService(t, m, Options{})

	out := s.Infer(context.Background(), imageContent())
	require.True(t, out.Result.Ok())
	require.Len(t, m.calls, 1)

	req := m.calls[0]
	assert.Equal(t, imagePrompt, req.Prompt)
	assert.Equal(t, "image/png", req.ImageMIME)
	assert.NotEmpty(t, req.Image)
	assert.Equal(t, 2048, req.Sampling.MaxOutputTokens)
	assert.InDelta(t, 0.3, req.Sampling.Temperature, 1e-9)
}

func TestInferRepairsQuotesAndNewlines(t *testing.T) {
	m := &fakeModel{text: "{'nodes': [{'id': 'a',\n'text': 'Step A'}],\n'edges': []}"}
	s := newService(t, m, Options{})

	out := s.Infer(context.Background(), textContent("x"))
	g, err := out.Result.Unwrap()
	require.NoError(t, err)
	assert.True(t, out.Repaired)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Step A", g.Nodes[0].Text)
	assert.Equal(t, schema.NodeCore, g.Nodes[0].Type)
}

func TestInferUnparsableAfterRepair(t *testing.T) {
	m := &fakeModel{text: `{"nodes": [ {"id": "a", } oops }`}
	s := newService(t, m, Options{})

	out := s.Infer(context.Background(), textContent("x"))
	require.False(t, out.Result.Ok())
	assert.True(t, schema.HasCode(out.Result.Err(), schema.ErrCodeInference))

	g := out.Result.OrErrorGraph()
	assert.True(t, g.IsErrorGraph())
	assert.Equal(t, schema.ErrorNodeID, g.Nodes[0].ID)
}

func TestInferSchemaRejection(t *testing.T) {
	cases := map[string]string{
		"nodes not a list":    `{"nodes": "intake"}`,
		"node not an object":  `{"nodes": ["intake"]}`,
		"edges not a list":    `{"nodes": [], "edges": {"from": "a"}}`,
		"nested object field": `{"nodes": [{"id": {"x": 1}, "text": "t"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s := newService(t, &fakeModel{text: body}, Options{})
			out := s.Infer(context.Background(), textContent("x"))
			require.False(t, out.Result.Ok())
			assert.True(t, schema.HasCode(out.Result.Err(), schema.ErrCodeInference))
		})
	}
}

func TestInferNoJSON(t *testing.T) {
	t.Run("text path fails", func(t *testing.T) {
		s := newService(t, &fakeModel{text: "I could not find any process."}, Options{})
		out := s.Infer(context.Background(), textContent("x"))
		require.False(t, out.Result.Ok())
		assert.Contains(t, out.Result.Err().Error(), "no valid JSON")
	})

	t.Run("image path falls back to a single node", func(t *testing.T) {
		long := "  " + strings.Repeat("a", 600) + "  "
		s := newService(t, &fakeModel{text: long}, Options{})
		out := s.Infer(context.Background(), imageContent())

		g, err := out.Result.Unwrap()
		require.NoError(t, err)
		assert.True(t, out.Fallback)
		require.Len(t, g.Nodes, 1)
		assert.Equal(t, "node_1", g.Nodes[0].ID)
		assert.Equal(t, schema.NodeCore, g.Nodes[0].Type)
		assert.Equal(t, strings.Repeat("a", 500), g.Nodes[0].Text)
		assert.Empty(t, g.Edges)
	})
}

func TestInferEmptyResponse(t *testing.T) {
	s := newService(t, &fakeModel{text: "  \n "}, Options{})
	out := s.Infer(context.Background(), textContent("x"))
	require.False(t, out.Result.Ok())
	assert.Contains(t, out.Result.Err().Error(), "empty response")
}

func TestInferTransportError(t *testing.T) {
	apiErr := &llm.APIError{Provider: "gemini", StatusCode: 503, Body: "overloaded"}
	s := newService(t, &fakeModel{err: apiErr}, Options{})

	out := s.Infer(context.Background(), textContent("x"))
	require.False(t, out.Result.Ok())

	var got *llm.APIError
	require.True(t, errors.As(out.Result.Err(), &got))
	assert.Equal(t, 503, got.StatusCode)

	g := out.Result.OrErrorGraph()
	require.True(t, g.IsErrorGraph())
	assert.Contains(t, g.Nodes[0].Text, "Error analyzing content")
}

func TestInferTruncatesLongText(t *testing.T) {
	m := &fakeModel{text: `{"nodes":[]}`}
	s := newService(t, m, Options{MaxTextChars: 10})

	out := s.Infer(context.Background(), textContent("ééééééééééééééé"))
	assert.True(t, out.Truncated)
	require.Len(t, m.calls, 1)
	assert.True(t, strings.HasSuffix(m.calls[0].Prompt, "\n\nDocument text:\néééééééééé..."))

	m2 := &fakeModel{text: `{"nodes":[]}`}
	out = newService(t, m2, Options{MaxTextChars: 10}).Infer(context.Background(), textContent("0123456789"))
	assert.False(t, out.Truncated)
	assert.True(t, strings.HasSuffix(m2.calls[0].Prompt, "0123456789"))
}

func TestInferAliasesAndDefaults(t *testing.T) {
	m := &fakeModel{text: `{
  "nodes": [
    {"id": 1, "description": "Numeric id", "type": "SUPPORT"},
    {"id": "b", "title": "Titled"},
    {"id": "c", "text": "Odd type", "type": "decision"}
  ],
  "edges": [
    {"source": 1, "target": "b", "label": ""},
    {"from": "b", "to": "c", "label": "next"}
  ]
}`}
	s := newService(t, m, Options{})

	out := s.Infer(context.Background(), textContent("x"))
	g, err := out.Result.Unwrap()
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "1", g.Nodes[0].SourceID)
	assert.Equal(t, "Numeric id", g.Nodes[0].Text)
	assert.Equal(t, schema.NodeSupport, g.Nodes[0].Type)
	assert.Equal(t, "Titled", g.Nodes[1].Text)
	assert.Equal(t, schema.NodeCore, g.Nodes[1].Type)
	assert.Equal(t, schema.NodeCore, g.Nodes[2].Type)

	assert.Equal(t, []schema.Edge{
		{From: "1", To: "b", Label: "flow"},
		{From: "b", To: "c", Label: "next"},
	}, g.Edges)

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "decision")
}

func TestInferAbsentListsBecomeEmpty(t *testing.T) {
	s := newService(t, &fakeModel{text: `{}`}, Options{})
	out := s.Infer(context.Background(), textContent("x"))

	g, err := out.Result.Unwrap()
	require.NoError(t, err)
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
	assert.Empty(t, g.Nodes)
	assert.NotEmpty(t, out.Warnings)
}

func TestInferNilContent(t *testing.T) {
	m := &fakeModel{}
	s := newService(t, m, Options{})
	out := s.Infer(context.Background(), nil)
	assert.False(t, out.Result.Ok())
	assert.Empty(t, m.calls)
}

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := NewService(nil, nil, Options{}, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}
