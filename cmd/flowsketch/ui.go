package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/rendis/flowsketch/pkg/schema"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	infoColor.Fprintf(w, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// printError reports err with any configuration problems and troubleshooting
// hints it carries.
func printError(w io.Writer, err error) {
	errorColor.Fprintf(w, "✗ %v\n", err)

	var fe *schema.FlowError
	if errors.As(err, &fe) && fe.Code == schema.ErrCodeConfig {
		if problems, ok := fe.Details["problems"].([]string); ok {
			for _, p := range problems {
				fmt.Fprintf(w, "  - %s\n", p)
			}
		}
	}
	for _, h := range schema.Hints(err) {
		warnColor.Fprintf(w, "  → %s\n", h)
	}
}

// newSpinner returns a stderr spinner. It stays silent when stderr is not a
// terminal.
func newSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return s
}
