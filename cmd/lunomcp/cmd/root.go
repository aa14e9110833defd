package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amanasmuei/lunomcp/internal/config"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

// RootCmd is the root Cobra command that gets called from the main func.
// Without a subcommand it serves, so MCP hosts can launch the bare binary.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lunomcp",
		Short:         "lunomcp exposes the Luno exchange to AI assistants over MCP.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd)
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		serveCmd(),
		configCmd(),
		versionCmd(),
	)

	return cmd
}

func makeContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}
