package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/flowsketch/internal/extract"
	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

// Workspace is a scratch directory holding pipeline inputs and outputs.
type Workspace struct {
	Dir string
}

// NewWorkspace returns a Workspace rooted at dir.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{Dir: dir}
}

// Prepare creates the directory if needed.
func (w *Workspace) Prepare() error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create workspace %s: %w", w.Dir, err)
	}
	return nil
}

// Reset removes eligible inputs and previous outputs from the top level of
// the directory. Subdirectories are left alone.
func (w *Workspace) Reset() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read workspace %s: %w", w.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name != render.DescriptionFile && name != render.ImageFile && !extract.Eligible(name) {
			continue
		}
		if err := os.Remove(filepath.Join(w.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// Stage clears the workspace with Reset and then saves r as the single
// input under name.
func (w *Workspace) Stage(name string, r io.Reader) (string, error) {
	if err := w.Reset(); err != nil {
		return "", err
	}
	return w.Save(name, r)
}

// Save writes r to the workspace under the base name of name and returns the
// full path. Names with an unsupported extension are rejected before writing.
func (w *Workspace) Save(name string, r io.Reader) (string, error) {
	base := SanitizeName(name)
	if _, err := extract.Detect(base); err != nil {
		return "", err
	}

	path := filepath.Join(w.Dir, base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", base, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", base, err)
	}
	return path, nil
}

// Latest returns the most recently modified eligible file in the directory.
func (w *Workspace) Latest() (string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read workspace %s: %w", w.Dir, err)
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !extract.Eligible(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = e.Name(), info.ModTime()
		}
	}
	if newest == "" {
		return "", schema.NewErrorf(schema.ErrCodeNoInput, "no supported file found in %s", w.Dir).
			WithDetails(map[string]any{"supported": extract.SupportedExtensions()})
	}
	return filepath.Join(w.Dir, newest), nil
}

// SanitizeName reduces an uploaded file name to a safe base name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(name)
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "/" {
		return "upload"
	}
	return base
}
