package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/amanasmuei/lunomcp/internal/config"
	"github.com/amanasmuei/lunomcp/internal/logging"
	"github.com/amanasmuei/lunomcp/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over the configured transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd)
		},
	}
}

func serve(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	// Standard output carries the stdio transport, so logs go to stderr.
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	dispatcher, err := server.NewDispatcher(cfg, version, log)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, dispatcher, log)
	if err != nil {
		return err
	}

	ctx, cancel := makeContext()
	defer cancel()

	return srv.Run(ctx)
}
