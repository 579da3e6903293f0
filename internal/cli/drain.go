package cli

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/netstate"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/queue"
	"github.com/pocketbizz/pocketsync/internal/syncer"
)

// DrainOptions holds flags for the drain command.
type DrainOptions struct {
	*RootOptions
	ForceOnline bool

	// HTTPClient overrides the client used for probing and replays (for testing).
	HTTPClient *http.Client
}

// DrainReport is the outcome of a one-shot drain.
type DrainReport struct {
	Online  bool          `json:"online"`
	Result  syncer.Result `json:"result"`
	Notices []string      `json:"notices"`
}

// RenderText implements TextRenderer.
func (r DrainReport) RenderText(w io.Writer) error {
	switch r.Result.Skipped {
	case syncer.SkipOffline:
		_, err := fmt.Fprintln(w, "Server unreachable; queue left untouched")
		return err
	case syncer.SkipEmpty:
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}
	for _, n := range r.Notices {
		fmt.Fprintln(w, n)
	}
	_, err := fmt.Fprintf(w, "Replayed %d of %d\n", r.Result.Succeeded, r.Result.Attempted)
	return err
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay queued transactions to the server once",
		Long: `Replay queued transactions to the server once.

The server's health URL is probed first; when it is unreachable nothing is
replayed. Records the server rejects stay queued and the command exits 1.

Example:
  pocketsync drain
  pocketsync drain --force-online --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ForceOnline, "force-online", false, "skip the health probe and assume the server is reachable")
	return cmd
}

func runDrain(opts *DrainOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(nil)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	bus := notify.NewBus(notify.WithLogger(logger))
	notices := notify.NewRecorder(0)
	bus.Subscribe(notices.Handle)

	st, err := openQueue(cfg, queue.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	online := opts.ForceOnline
	if !online {
		probe := netstate.NewProbeSource(cfg.Connectivity.HealthURL,
			netstate.WithProbeClient(client),
			netstate.WithProbeLogger(logger),
		)
		online, _ = probe.Check(ctx)
	}
	monitor := netstate.New(online, netstate.WithLogger(logger))

	replayer := syncer.NewHTTPReplayer(cfg.Sync.SubmitURL,
		syncer.WithHTTPClient(client),
		syncer.WithSessionCookie(cfg.Sync.SessionCookie),
		syncer.WithBearerToken(cfg.Sync.BearerToken),
	)
	engine := syncer.New(st, replayer, monitor,
		syncer.WithBus(bus),
		syncer.WithLogger(logger),
		syncer.WithReplayTimeout(cfg.Sync.ReplayTimeout),
	)

	res, err := engine.Drain(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "drain", err)
	}

	report := DrainReport{Online: online, Result: res, Notices: []string{}}
	for _, e := range notices.Events() {
		report.Notices = append(report.Notices, e.Text())
	}
	if err := opts.formatter(cmd).Success(report); err != nil {
		return err
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d transaction(s) could not be replayed", res.Failed))
	}
	return nil
}
