package isolation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rendis/flowsketch/pkg/schema"
)

// Confinement restricts which input files may be read.
// Empty AllowRoots means any path not under a DenyRoot is allowed.
// DenyRoots always take precedence.
type Confinement struct {
	AllowRoots []string `yaml:"allow_roots" json:"allow_roots,omitempty"`
	DenyRoots  []string `yaml:"deny_roots" json:"deny_roots,omitempty"`
}

// Check resolves path (following symlinks on its longest existing prefix) and
// returns the resolved form if it is permitted, or a PATH_DENIED error.
func (c Confinement) Check(path string) (string, error) {
	clean, err := resolveCleanPath(path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodePathDenied, "invalid path %q: %v", path, err)
	}

	// An unresolvable deny rule denies everything.
	for _, deny := range c.DenyRoots {
		base, err := resolveCleanPath(deny)
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodePathDenied,
				"path %q denied: invalid deny rule %q: %v", path, deny, err)
		}
		if isUnderPath(clean, base) {
			return "", schema.NewErrorf(schema.ErrCodePathDenied, "path %q is denied", path)
		}
	}

	if len(c.AllowRoots) == 0 {
		return clean, nil
	}
	for _, root := range c.AllowRoots {
		base, err := resolveCleanPath(root)
		if err != nil {
			continue
		}
		if isUnderPath(clean, base) {
			return clean, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodePathDenied, "path %q is not under any allowed root", path)
}

func resolveCleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return resolveAncestor(abs), nil
}

// resolveAncestor resolves symlinks on the nearest existing ancestor of path
// and re-appends the remainder.
func resolveAncestor(path string) string {
	dir := path
	for range 256 {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
	return path
}

// isUnderPath reports whether path equals base or lies beneath it.
// /tmp does not contain /tmpevil.
func isUnderPath(path, base string) bool {
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
