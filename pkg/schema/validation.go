package schema

// ValidationIssue is one finding in a graph, located by a path such as
// "nodes[2].type".
type ValidationIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationResult collects the findings of a graph check. Structural
// problems are rejected before a graph exists, so everything here is a
// warning: the graph still renders.
type ValidationResult struct {
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// AddWarning appends a finding.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message})
}

// Clean reports whether the check found nothing. A nil result is clean.
func (r *ValidationResult) Clean() bool {
	return r == nil || len(r.Warnings) == 0
}

// Messages flattens the warnings into "path: message" strings.
func (r *ValidationResult) Messages() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.String())
	}
	return out
}
