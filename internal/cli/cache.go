package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/agent"
	"github.com/pocketbizz/pocketsync/internal/worker"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the app shell cache",
	}
	cmd.AddCommand(newCacheInstallCommand(rootOpts))
	cmd.AddCommand(newCacheListCommand(rootOpts))
	return cmd
}

// CacheListing maps each cache generation to its keys.
type CacheListing struct {
	Current string              `json:"current"`
	Caches  map[string][]string `json:"caches"`
	Names   []string            `json:"names"`
}

// RenderText implements TextRenderer.
func (l CacheListing) RenderText(w io.Writer) error {
	if len(l.Names) == 0 {
		_, err := fmt.Fprintln(w, "No caches")
		return err
	}
	for _, name := range l.Names {
		marker := ""
		if name == l.Current {
			marker = " (current)"
		}
		fmt.Fprintf(w, "%s%s: %d entries\n", name, marker, len(l.Caches[name]))
		for _, key := range l.Caches[name] {
			fmt.Fprintf(w, "  %s\n", key)
		}
	}
	return nil
}

func newCacheInstallCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch the app shell into the current cache generation",
		Long: `Fetch every manifest URL from the server into the current cache
generation, then delete every other generation.

Example:
  pocketsync cache install --upstream http://localhost:5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			storage, err := agent.OpenStorage(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "open cache", err)
			}
			defer storage.Close()

			w, err := worker.New(cfg.Upstream, storage,
				worker.WithCacheName(cfg.Cache.Name),
				worker.WithManifest(cfg.Cache.Manifest),
				worker.WithExclusions(cfg.Cache.Exclusions),
				worker.WithLogger(rootOpts.newLogger(cmd.ErrOrStderr())),
			)
			if err != nil {
				return WrapExitError(ExitCommandError, "create worker", err)
			}
			if err := w.Install(ctx); err != nil {
				return WrapExitError(ExitFailure, "install", err)
			}
			if err := w.Activate(ctx); err != nil {
				return WrapExitError(ExitFailure, "activate", err)
			}

			listing, err := listCaches(cmd, storage, cfg.Cache.Name)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(listing)
		},
	}
}

func newCacheListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cache generations and their entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			storage, err := agent.OpenStorage(commandContext(cmd), cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "open cache", err)
			}
			defer storage.Close()

			listing, err := listCaches(cmd, storage, cfg.Cache.Name)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(listing)
		},
	}
}

func listCaches(cmd *cobra.Command, storage worker.Storage, current string) (CacheListing, error) {
	ctx := commandContext(cmd)
	names, err := storage.Names(ctx)
	if err != nil {
		return CacheListing{}, WrapExitError(ExitCommandError, "list caches", err)
	}
	listing := CacheListing{Current: current, Caches: map[string][]string{}, Names: names}
	for _, name := range names {
		keys, err := storage.Keys(ctx, name)
		if err != nil {
			return CacheListing{}, WrapExitError(ExitCommandError, "list cache "+name, err)
		}
		listing.Caches[name] = keys
	}
	return listing, nil
}
