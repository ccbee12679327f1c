package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	flowmcp "github.com/rendis/flowsketch/pkg/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the diagram tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd, true)
			if err != nil {
				return err
			}

			p, err := newPipeline(cfg, logger, "")
			if err != nil {
				return err
			}
			defer p.Close()

			scratch := filepath.Join(cfg.WorkDir, "scratch")
			if err := os.MkdirAll(scratch, 0o755); err != nil {
				return err
			}

			srv, err := flowmcp.NewFlowsketchServer(flowmcp.FlowsketchServerDeps{
				Pipeline:    p,
				Confinement: cfg.MCP.Confinement,
				ScratchRoot: scratch,
				Diagram:     diagramOptions(cfg),
				Logger:      logger,
				Version:     version,
			})
			if err != nil {
				return err
			}
			logger.Info("mcp server listening on stdio", "version", version)
			return srv.Serve(cmd.Context())
		},
	}
}
