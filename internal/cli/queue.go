package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/queue"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the offline transaction queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueAddCommand(rootOpts))
	cmd.AddCommand(newQueueStatsCommand(rootOpts))
	return cmd
}

type transactionList []ledger.QueuedTransaction

func (l transactionList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tAMOUNT\tCHANNEL\tDESCRIPTION\tSYNCED")
	for _, t := range l {
		synced := "no"
		if t.Synced {
			synced = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.CreatedAt.Format(time.DateTime), t.Type, t.Amount.StringFixed(2),
			t.Channel, t.Description, synced)
	}
	return tw.Flush()
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var listOpts queue.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued transactions, oldest first",
		Long: `List queued transactions, oldest first.

By default only records still waiting for the server are shown.

Example:
  pocketsync queue list
  pocketsync queue list --all --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			st, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.List(commandContext(cmd), listOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "list queue", err)
			}
			return rootOpts.formatter(cmd).Success(transactionList(records))
		},
	}

	cmd.Flags().BoolVar(&listOpts.IncludeSynced, "all", false, "include records the server has confirmed")
	cmd.Flags().IntVar(&listOpts.Limit, "limit", 0, "maximum number of records (0 = no limit)")
	return cmd
}

type queuedRecord ledger.QueuedTransaction

func (r queuedRecord) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Queued #%d (%s %s, %s)\n", r.ID, r.Type, r.Amount.StringFixed(2), r.IdempotencyKey)
	return err
}

func newQueueAddCommand(rootOpts *RootOptions) *cobra.Command {
	fields := map[string]*string{}
	names := []string{"type", "amount", "description", "channel", "category"}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a transaction as if it had been submitted offline",
		Long: `Queue a transaction as if it had been submitted offline.

Example:
  pocketsync queue add --type income --amount 45.50 --description "Kek lapis" --channel shopee`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}

			form := map[string]string{}
			for name, v := range fields {
				form[name] = *v
			}
			draft, err := ledger.ParseForm(form)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid transaction", err)
			}

			st, err := openQueue(cfg, queue.WithLogger(rootOpts.newLogger(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Enqueue(commandContext(cmd), draft)
			if ledger.IsValidationError(err) {
				return WrapExitError(ExitCommandError, "invalid transaction", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "enqueue", err)
			}
			return rootOpts.formatter(cmd).Success(queuedRecord(rec))
		},
	}

	for _, name := range names {
		fields[name] = cmd.Flags().String(name, "", "transaction "+name)
	}
	for _, name := range []string{"type", "amount", "description", "channel"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

type queueStats queue.Stats

func (s queueStats) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Total:    %d\n", s.Total)
	fmt.Fprintf(w, "Unsynced: %d\n", s.Unsynced)
	if s.OldestUnsynced != nil {
		fmt.Fprintf(w, "Oldest:   %s\n", s.OldestUnsynced.Format(time.DateTime))
	}
	return nil
}

func newQueueStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count queued and synced transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			st, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "queue stats", err)
			}
			return rootOpts.formatter(cmd).Success(queueStats(stats))
		},
	}
}
