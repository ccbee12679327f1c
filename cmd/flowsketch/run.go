package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowsketch/internal/pipeline"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		outDir string
		open   bool
		engine string
	)

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Diagram one document or image",
		Long: `Diagram one document or image. Without a file argument the most recently
modified supported file in work_dir is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd, true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("open") {
				cfg.Render.Open = open
			}
			if engine != "" {
				cfg.Render.Engine = engine
				if err := cfg.Validate(true); err != nil {
					return err
				}
			}

			p, err := newPipeline(cfg, logger, outDir)
			if err != nil {
				return err
			}
			defer p.Close()

			sp := newSpinner("sketching workflow...")
			sp.Start()
			var res *pipeline.Result
			if len(args) == 1 {
				res, err = p.Run(cmd.Context(), args[0])
			} else {
				res, err = p.RunLatest(cmd.Context(), cfg.WorkDir)
			}
			sp.Stop()
			if err != nil {
				return err
			}

			report(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: next to the input)")
	cmd.Flags().BoolVar(&open, "open", false, "open the image with the system viewer")
	cmd.Flags().StringVar(&engine, "engine", "", "renderer: mermaid or graphviz")
	return cmd
}

func report(cmd *cobra.Command, res *pipeline.Result) {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if res.Degraded {
		printWarning(errOut, "inference failed, drew the error diagram instead: %v", res.Failure)
	}
	if res.Truncated {
		printWarning(errOut, "input text was truncated before inference")
	}
	for _, w := range res.Warnings {
		printInfo(errOut, "%s", w)
	}
	printSuccess(errOut, "%d nodes, %d edges in %s", res.Description.Nodes, res.Description.Edges,
		res.Elapsed.Round(10*time.Millisecond))
	fmt.Fprintln(out, res.ImagePath)
}
