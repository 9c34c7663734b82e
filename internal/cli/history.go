package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Game     string
	Discord  string
	Flow     string
	Limit    int
}

// HistoryResult holds journaled outcomes.
type HistoryResult struct {
	Records []outcomeRow `json:"records"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled sync outcomes",
		Long: `List the outcomes journaled in the database, oldest first.

Examples:
  linksync history --game alice --limit 20
  linksync history --flow 0192f0c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultDatabase, "path to SQLite database")
	cmd.Flags().StringVar(&opts.Game, "game", "", "only outcomes for this game account")
	cmd.Flags().StringVar(&opts.Discord, "discord", "", "only outcomes for this discord account")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "only outcomes of this flow")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "newest N outcomes (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot open database", err)
	}
	defer st.Close()

	records, err := st.History(commandContext(cmd), store.HistoryFilter{
		GameActor:    ir.GameActor(opts.Game),
		DiscordActor: ir.DiscordActor(opts.Discord),
		FlowToken:    opts.Flow,
		Limit:        opts.Limit,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot read history", err)
	}

	result := HistoryResult{Records: make([]outcomeRow, len(records))}
	for i, rec := range records {
		result.Records[i] = toRow(rec.Outcome, rec.Error)
	}

	return formatter.Emit(result, func(w io.Writer) {
		if len(result.Records) == 0 {
			fmt.Fprintln(w, "No outcomes recorded.")
			return
		}
		printOutcomes(w, result.Records)
	})
}
