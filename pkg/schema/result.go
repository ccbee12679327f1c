package schema

import "errors"

// GraphResult is either a graph or the error that prevented one.
// Exactly one of the two is set.
type GraphResult struct {
	graph *WorkflowGraph
	err   error
}

// OkGraph wraps a successfully inferred graph.
func OkGraph(g *WorkflowGraph) GraphResult {
	if g == nil {
		g = &WorkflowGraph{}
	}
	return GraphResult{graph: g}
}

// FailGraph wraps an inference failure.
func FailGraph(err error) GraphResult {
	if err == nil {
		err = NewError(ErrCodeInference, "inference failed without a reason")
	}
	return GraphResult{err: err}
}

// Ok reports whether the result carries a graph.
func (r GraphResult) Ok() bool {
	return r.err == nil
}

// Unwrap returns the graph or the error.
func (r GraphResult) Unwrap() (*WorkflowGraph, error) {
	return r.graph, r.err
}

// Err returns the failure, or nil.
func (r GraphResult) Err() error {
	return r.err
}

// OrErrorGraph returns the graph, or converts the failure into a one-node error graph.
func (r GraphResult) OrErrorGraph() *WorkflowGraph {
	if r.err == nil {
		return r.graph
	}
	return ErrorGraph(failureText(r.err))
}

func failureText(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return "Error analyzing content: " + fe.Message + ". Please try with a different file."
	}
	return "Error analyzing content: " + err.Error() + ". Please try with a different file."
}
