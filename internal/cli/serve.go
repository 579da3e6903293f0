package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/agent"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen       string
	Connectivity string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the offline proxy",
		Long: `Run the offline proxy in front of the PocketBizz server.

Point the browser at the listen address. The proxy installs the app shell
into its cache, watches connectivity, queues transaction forms while offline
and replays them when the server is reachable again. The admin API is served
under /__pocketsync/.

Example:
  pocketsync serve --upstream http://localhost:5000 --listen :8080
  pocketsync serve --config pocketsync.yaml --connectivity websocket -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on")
	cmd.Flags().StringVar(&opts.Connectivity, "connectivity", "", "connectivity source (probe|websocket|manual)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(map[string]string{
		"POCKETSYNC_LISTEN":       opts.Listen,
		"POCKETSYNC_CONNECTIVITY": opts.Connectivity,
	})
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := agent.New(ctx, cfg, agent.WithLogger(logger), agent.WithRequestLog(opts.Verbose))
	if err != nil {
		return WrapExitError(ExitCommandError, "start agent", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing agent", "error", closeErr)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Proxying %s on %s\n", cfg.Upstream, cfg.PublicOrigin)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "serve", err)
	}
	logger.Info("stopped")
	return nil
}
