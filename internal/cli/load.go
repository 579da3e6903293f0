package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/config"
	"github.com/pocketbizz/pocketsync/internal/queue"
)

// loadConfig reads configuration with the command-line overrides taking
// precedence over the environment.
func (o *RootOptions) loadConfig(extra map[string]string) (config.Config, error) {
	overrides := map[string]string{}
	if o.Upstream != "" {
		overrides["POCKETSYNC_UPSTREAM"] = o.Upstream
	}
	if o.DataDir != "" {
		overrides["POCKETSYNC_DATA_DIR"] = o.DataDir
	}
	for k, v := range extra {
		if v != "" {
			overrides[k] = v
		}
	}

	cfg, err := config.Load(config.LoadOptions{
		Path:    o.ConfigPath,
		EnvFile: o.EnvFile,
		Lookup: func(key string) (string, bool) {
			if v, ok := overrides[key]; ok {
				return v, true
			}
			return os.LookupEnv(key)
		},
	})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// newLogger logs to w at Info, or Debug with --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openQueue opens the queue store, creating the data directory if needed.
func openQueue(cfg config.Config, opts ...queue.Option) (*queue.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data dir", err)
	}
	st, err := queue.Open(cfg.QueuePath(), opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open queue %s", cfg.QueuePath()), err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
