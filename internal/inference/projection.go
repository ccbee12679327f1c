package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// projectionQuery reshapes whatever the model produced into the canonical
// {nodes:[{id,text,type}], edges:[{from,to,label}]} form. Every field comes
// out as a string; common aliases are folded in. Input has already passed the
// candidate schema, so list items are objects.
const projectionQuery = `{
  nodes: [ (.nodes // [])[] | {
    id:   ((.id // "") | tostring),
    text: ((.text // .description // .title // "") | tostring),
    type: ((.type // "") | tostring | ascii_downcase)
  } ],
  edges: [ (.edges // [])[] | {
    from:  ((.from // .source // "") | tostring),
    to:    ((.to // .target // "") | tostring),
    label: ((.label // "") | tostring)
  } ]
}`

type projectedNode struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type projectedEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

type projected struct {
	Nodes []projectedNode `json:"nodes"`
	Edges []projectedEdge `json:"edges"`
}

// projector runs the compiled projection. Compiled gojq code is safe for
// concurrent use.
type projector struct {
	code *gojq.Code
}

func newProjector() (*projector, error) {
	q, err := gojq.Parse(projectionQuery)
	if err != nil {
		return nil, fmt.Errorf("parse projection: %w", err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile projection: %w", err)
	}
	return &projector{code: code}, nil
}

func (p *projector) project(ctx context.Context, doc any) (*projected, error) {
	iter := p.code.RunWithContext(ctx, doc)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("projection produced no output")
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("projection failed: %w", err)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}
	var out projected
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	return &out, nil
}
