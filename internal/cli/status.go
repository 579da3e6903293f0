package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/agent"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Addr string

	// HTTPClient overrides the client used to reach the agent (for testing).
	HTTPClient *http.Client
}

type statusView agent.Status

// RenderText implements TextRenderer.
func (s statusView) RenderText(w io.Writer) error {
	conn := "offline"
	if s.Online {
		conn = "online"
	}
	fmt.Fprintf(w, "Connectivity: %s\n", conn)
	if s.Indicator.Visible {
		fmt.Fprintf(w, "Banner:       %s\n", s.Indicator.Text)
	}
	fmt.Fprintf(w, "Worker:       %s (%s)\n", s.WorkerState, s.CacheName)
	switch {
	case s.Queue != nil:
		fmt.Fprintf(w, "Queue:        %d unsynced of %d\n", s.Queue.Unsynced, s.Queue.Total)
	case s.QueueError != "":
		fmt.Fprintf(w, "Queue:        unavailable (%s)\n", s.QueueError)
	}
	if len(s.PendingSyncs) > 0 {
		fmt.Fprintf(w, "Pending sync: %s\n", strings.Join(s.PendingSyncs, ", "))
	}
	if s.Draining {
		fmt.Fprintln(w, "Draining now")
	}
	for _, e := range s.Events {
		fmt.Fprintf(w, "  %s  %s\n", e.At.Format(time.TimeOnly), e.Text)
	}
	return nil
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running proxy",
		Long: `Show the state of a running proxy through its admin API.

Example:
  pocketsync status
  pocketsync status --addr http://localhost:8080 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "proxy origin (defaults to the configured public origin)")
	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	addr := opts.Addr
	if addr == "" {
		cfg, err := opts.loadConfig(nil)
		if err != nil {
			return err
		}
		addr = cfg.PublicOrigin
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	url := strings.TrimRight(addr, "/") + agent.AdminPrefix + "/status"
	req, err := http.NewRequestWithContext(commandContext(cmd), http.MethodGet, url, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitCommandError, "proxy not reachable at "+addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewExitError(ExitCommandError, fmt.Sprintf("status request failed: %s", resp.Status))
	}

	var st agent.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return WrapExitError(ExitCommandError, "decode status", err)
	}
	return opts.formatter(cmd).Success(statusView(st))
}
