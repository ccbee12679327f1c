package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphResult_Ok(t *testing.T) {
	g := &WorkflowGraph{Nodes: []Node{{ID: "node_1", Text: "intake", Type: NodeCore}}}
	r := OkGraph(g)

	assert.True(t, r.Ok())
	got, err := r.Unwrap()
	require.NoError(t, err)
	assert.Same(t, g, got)
	assert.Same(t, g, r.OrErrorGraph())
}

func TestGraphResult_FailAdaptsToErrorGraph(t *testing.T) {
	r := FailGraph(NewError(ErrCodeInference, "model returned no candidates"))

	assert.False(t, r.Ok())
	g := r.OrErrorGraph()
	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges)
	assert.Equal(t, ErrorNodeID, g.Nodes[0].ID)
	assert.Equal(t, NodeError, g.Nodes[0].Type)
	assert.Contains(t, g.Nodes[0].Text, "model returned no candidates")
	assert.True(t, g.IsErrorGraph())
}

func TestGraphResult_PlainErrorAndNil(t *testing.T) {
	g := FailGraph(errors.New("dial tcp: timeout")).OrErrorGraph()
	assert.Contains(t, g.Nodes[0].Text, "dial tcp: timeout")

	assert.True(t, HasCode(FailGraph(nil).Err(), ErrCodeInference))

	empty := OkGraph(nil).OrErrorGraph()
	require.NotNil(t, empty)
	assert.False(t, empty.IsErrorGraph())
}

func TestNodeTypeValid(t *testing.T) {
	assert.True(t, NodeCore.Valid())
	assert.True(t, NodeSupport.Valid())
	assert.True(t, NodeError.Valid())
	assert.False(t, NodeType("process").Valid())
	assert.False(t, NodeType("").Valid())
}
