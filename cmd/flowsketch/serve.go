package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/flowsketch/internal/janitor"
	"github.com/rendis/flowsketch/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document and camera upload endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd, true)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
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
			jan, err := janitor.New(scratch, cfg.Server.ScratchTTL, cfg.Server.JanitorSchedule, logger)
			if err != nil {
				return err
			}

			srv := server.New(p, server.Options{
				ScratchRoot:    scratch,
				MaxConcurrent:  int64(cfg.Server.MaxConcurrent),
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
			}, logger)
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr, jan)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :5001)")
	return cmd
}
