package render

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/isolation"
	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/pkg/schema"
)

const fakeCLI = `#!/bin/sh
dir=$(dirname "$0")
echo "$@" > "$dir/args.txt"
echo "$NODE_OPTIONS" > "$dir/env.txt"
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'PNG' > "$out"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-mmdc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func sampleJob(t *testing.T) Job {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			{ID: "node_1", Text: "Intake", Type: schema.NodeCore, SourceID: "intake"},
			{ID: "node_2", Text: "Audit", Type: schema.NodeSupport, SourceID: "audit"},
		},
		Edges: []schema.Edge{{From: "intake", To: "audit", Label: "logs"}},
	}
	return Job{Graph: g, Description: diagram.Build(g, diagram.Options{}), Dir: t.TempDir()}
}

type fakeRunner struct {
	out *isolation.Output
	err error
	got isolation.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd isolation.Command) (*isolation.Output, error) {
	f.got = cmd
	return f.out, f.err
}

func TestForOS(t *testing.T) {
	tests := []struct {
		goos    string
		command []string
		opener  []string
	}{
		{"darwin", []string{"npx", "@mermaid-js/mermaid-cli", "mmdc"}, []string{"open", "/x.png"}},
		{"windows", []string{"npx.cmd", "@mermaid-js/mermaid-cli"}, []string{"cmd", "/c", "start", "", "/x.png"}},
		{"linux", []string{"npx", "@mermaid-js/mermaid-cli"}, []string{"xdg-open", "/x.png"}},
		{"freebsd", []string{"npx", "@mermaid-js/mermaid-cli"}, []string{"xdg-open", "/x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			p := ForOS(tt.goos)
			assert.Equal(t, tt.command, p.Command)
			assert.Equal(t, tt.opener, p.Opener("/x.png").Args)
		})
	}
}

func TestRenderArgs(t *testing.T) {
	args := ForOS("darwin").RenderArgs("in.mmd", "out.png")
	assert.Equal(t, []string{"@mermaid-js/mermaid-cli", "mmdc", "-i", "in.mmd", "-o", "out.png", "-b", "transparent", "-s", "2"}, args)

	p := ForOS("linux").WithCommand([]string{"mmdc"})
	assert.Equal(t, []string{"-i", "a", "-o", "b", "-b", "transparent", "-s", "2"}, p.RenderArgs("a", "b"))
	assert.Equal(t, []string{"mmdc"}, p.Command)

	assert.Equal(t, ForOS("linux").Command, ForOS("linux").WithCommand(nil).Command)
}

func TestMermaidCLIRender(t *testing.T) {
	script := writeScript(t, fakeCLI)
	job := sampleJob(t)
	r := NewMermaidCLI(Platform{Command: []string{script}}, isolation.NewExecRunner(10*time.Second), logging.Discard())

	path, err := r.Render(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(job.Dir, ImageFile), path)

	png, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(png))

	mmd, err := os.ReadFile(filepath.Join(job.Dir, DescriptionFile))
	require.NoError(t, err)
	assert.Equal(t, job.Description.Text, string(mmd))

	args, err := os.ReadFile(filepath.Join(filepath.Dir(script), "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "-b transparent -s 2")
	env, err := os.ReadFile(filepath.Join(filepath.Dir(script), "env.txt"))
	require.NoError(t, err)
	assert.Equal(t, "--no-warnings\n", string(env))
}

func TestMermaidCLIFailureCarriesHints(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho 'Error: parse failure' >&2\nexit 1\n")
	r := NewMermaidCLI(Platform{Command: []string{script}}, nil, logging.Discard())

	_, err := r.Render(context.Background(), sampleJob(t))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeRender))
	assert.Equal(t, TroubleshootingHints, schema.Hints(err))

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Error: parse failure", fe.Details["stderr"])
	assert.Equal(t, schema.StageRender, fe.Stage)
}

func TestMermaidCLIMissingOutput(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 0\n")
	r := NewMermaidCLI(Platform{Command: []string{script}}, nil, logging.Discard())

	_, err := r.Render(context.Background(), sampleJob(t))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeRender))
	assert.Contains(t, err.Error(), "no image")
	assert.Len(t, schema.Hints(err), 4)
}

func TestMermaidCLIRemovesStaleImage(t *testing.T) {
	job := sampleJob(t)
	stale := filepath.Join(job.Dir, ImageFile)
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	runner := &fakeRunner{out: &isolation.Output{}}
	r := NewMermaidCLI(ForOS("linux"), runner, logging.Discard())

	_, err := r.Render(context.Background(), job)
	require.Error(t, err)
	assert.NoFileExists(t, stale)

	assert.Equal(t, "npx", runner.got.Path)
	assert.Equal(t, job.Dir, runner.got.Dir)
	assert.Equal(t, []string{"NODE_OPTIONS=--no-warnings"}, runner.got.Env)
}

func TestMermaidCLITimeout(t *testing.T) {
	runner := &fakeRunner{
		out: &isolation.Output{ExitCode: -1},
		err: schema.NewError(schema.ErrCodeTimeout, "npx did not finish"),
	}
	r := NewMermaidCLI(ForOS("linux"), runner, logging.Discard())

	_, err := r.Render(context.Background(), sampleJob(t))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRender, schema.CodeOf(err))
	assert.True(t, schema.HasCode(err, schema.ErrCodeTimeout))
	assert.NotEmpty(t, schema.Hints(err))
}

func TestMermaidCLIRequiresDir(t *testing.T) {
	r := NewMermaidCLI(ForOS("linux"), &fakeRunner{}, logging.Discard())
	_, err := r.Render(context.Background(), Job{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeRender))

	r = NewMermaidCLI(Platform{}, &fakeRunner{}, logging.Discard())
	_, err = r.Render(context.Background(), Job{Dir: t.TempDir()})
	assert.True(t, schema.HasCode(err, schema.ErrCodeRender))
}

func TestGraphvizRender(t *testing.T) {
	job := sampleJob(t)
	r := NewGraphviz(diagram.Options{}, logging.Discard())

	path, err := r.Render(context.Background(), job)
	require.NoError(t, err)

	png, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", string(png[:8]))
	assert.FileExists(t, filepath.Join(job.Dir, DescriptionFile))
}

func TestGraphvizRenderErrorGraphAndDangling(t *testing.T) {
	g := schema.ErrorGraph("Error analyzing content: boom. Please try with a different file.")
	g.Edges = append(g.Edges, schema.Edge{From: schema.ErrorNodeID, To: "ghost"})
	job := Job{Graph: g, Description: diagram.Build(g, diagram.Options{KeepDangling: true}), Dir: t.TempDir()}

	path, err := NewGraphviz(diagram.Options{KeepDangling: true}, logging.Discard()).Render(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ImageFile))
}

func TestOpenIgnoresFailures(t *testing.T) {
	p := Platform{Opener: func(path string) *exec.Cmd { return exec.Command("flowsketch-no-such-viewer", path) }}
	Open(p, "/tmp/none.png", logging.Discard())
	Open(Platform{}, "/tmp/none.png", logging.Discard())
}
