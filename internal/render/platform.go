package render

import (
	"os/exec"
	"runtime"
)

// Platform holds the OS-specific renderer command and file opener.
type Platform struct {
	Name    string
	Command []string
	Opener  func(path string) *exec.Cmd
}

// ForOS returns the platform strategy for goos.
func ForOS(goos string) Platform {
	switch goos {
	case "darwin":
		return Platform{
			Name:    goos,
			Command: []string{"npx", "@mermaid-js/mermaid-cli", "mmdc"},
			Opener:  func(path string) *exec.Cmd { return exec.Command("open", path) },
		}
	case "windows":
		return Platform{
			Name:    goos,
			Command: []string{"npx.cmd", "@mermaid-js/mermaid-cli"},
			Opener:  func(path string) *exec.Cmd { return exec.Command("cmd", "/c", "start", "", path) },
		}
	default:
		return Platform{
			Name:    goos,
			Command: []string{"npx", "@mermaid-js/mermaid-cli"},
			Opener:  func(path string) *exec.Cmd { return exec.Command("xdg-open", path) },
		}
	}
}

// Current returns the platform for the running OS.
func Current() Platform {
	return ForOS(runtime.GOOS)
}

// WithCommand returns p with its renderer command replaced. An empty
// command leaves p unchanged.
func (p Platform) WithCommand(command []string) Platform {
	if len(command) > 0 {
		p.Command = append([]string(nil), command...)
	}
	return p
}

// RenderArgs is the full argument vector for rendering in to out.
func (p Platform) RenderArgs(in, out string) []string {
	args := append([]string(nil), p.Command[1:]...)
	return append(args, "-i", in, "-o", out, "-b", "transparent", "-s", "2")
}
