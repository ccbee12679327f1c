package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":                 "report.pdf",
		"../../etc/passwd.txt":       "passwd.txt",
		`C:\Users\me\scan.png`:       "scan.png",
		"..":                         "upload",
		"":                           "upload",
		"/":                          "upload",
		".hidden.md":                 "hidden.md",
		"bad\x00name\nhere.jpg":      "badnamehere.jpg",
		"dir/with space/My Doc.docx": "My Doc.docx",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}

func TestWorkspaceSave(t *testing.T) {
	ws := NewWorkspace(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, ws.Prepare())

	path, err := ws.Save("../escape/flow.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Dir, "flow.txt"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = ws.Save("macro.xlsm", strings.NewReader("x"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeUnsupportedFormat))
	assert.NoFileExists(t, filepath.Join(ws.Dir, "macro.xlsm"))
}

func TestWorkspaceReset(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.PNG", render.DescriptionFile, render.ImageFile, "keep.json"} {
		writeFile(t, dir, name, "x")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "run-1"), 0o755))
	writeFile(t, filepath.Join(dir, "run-1"), "c.pdf", "x")

	require.NoError(t, NewWorkspace(dir).Reset())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"keep.json", "run-1"}, names)
	assert.FileExists(t, filepath.Join(dir, "run-1", "c.pdf"))

	assert.NoError(t, NewWorkspace(filepath.Join(dir, "missing")).Reset())
}

func TestWorkspaceStageReplacesPreviousInput(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"old.pdf", "older.png", render.ImageFile, "notes.json"} {
		writeFile(t, dir, name, "x")
	}
	ws := NewWorkspace(dir)

	path, err := ws.Stage("flow.txt", strings.NewReader("receive then ship"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"flow.txt", "notes.json"}, names)

	latest, err := ws.Latest()
	require.NoError(t, err)
	assert.Equal(t, path, latest)
}

func TestWorkspaceLatest(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(dir)

	_, err := ws.Latest()
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNoInput))

	a := writeFile(t, dir, "a.pdf", "x")
	b := writeFile(t, dir, "b.jpeg", "x")
	writeFile(t, dir, "c.csv", "x")
	now := time.Now()
	require.NoError(t, os.Chtimes(a, now, now))
	require.NoError(t, os.Chtimes(b, now.Add(-time.Minute), now.Add(-time.Minute)))

	got, err := ws.Latest()
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = NewWorkspace(filepath.Join(dir, "nope")).Latest()
	assert.True(t, schema.HasCode(err, schema.ErrCodeNoInput))
}
