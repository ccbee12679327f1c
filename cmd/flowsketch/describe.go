package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowsketch/internal/diagram"
	"github.com/rendis/flowsketch/internal/validation"
	"github.com/rendis/flowsketch/pkg/schema"
)

func newDescribeCmd(root *rootOptions) *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "describe <graph.json|->",
		Short: "Compile a graph JSON file into Mermaid text",
		Long: `Compile a graph JSON file into Mermaid flowchart text without calling the
model or the renderer. Use - to read the graph from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd, false)
			if err != nil {
				return err
			}

			raw, err := readGraphInput(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := validation.NewGraphValidator()
			if err != nil {
				return err
			}
			if err := v.ValidateJSON(raw); err != nil {
				return err
			}
			var g schema.WorkflowGraph
			if err := json.Unmarshal(raw, &g); err != nil {
				return schema.NewError(schema.ErrCodeValidation, "graph does not match the node/edge shape").WithCause(err)
			}

			desc := diagram.Build(&g, diagramOptions(cfg))
			for _, msg := range v.CheckGraph(&g).Messages() {
				printWarning(cmd.ErrOrStderr(), "%s", msg)
			}

			if outFile == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), desc.Text)
				return err
			}
			if err := os.WriteFile(outFile, []byte(desc.Text), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			printSuccess(cmd.ErrOrStderr(), "wrote %s", outFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the description to a file instead of stdout")
	return cmd
}

func readGraphInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNoInput, "cannot read graph file %q", name).WithCause(err)
	}
	return raw, nil
}
