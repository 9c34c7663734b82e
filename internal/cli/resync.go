package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/ir"
)

// ResyncOptions holds flags for the resync command.
type ResyncOptions struct {
	*RootOptions
	Config   string
	Database string
	Game     string
	Discord  string
	Pairing  string // optional - only this pairing
}

// OutcomesResult holds the outcomes produced by one command.
type OutcomesResult struct {
	Outcomes []outcomeRow `json:"outcomes"`
	Failed   int          `json:"failed"`
}

// NewResyncCommand creates the resync command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Reconcile one account against the stores",
		Long: `Read both sides for one account and reconcile every pairing, or one
pairing with --pairing. Where the sides disagree, the pairing's
tie-breaker wins.

Exit codes:
  0 - All pairings reconciled
  1 - At least one pairing reported NOT_LINKED or BACKEND_FAILURE
  2 - Command error

Examples:
  linksync resync -c linksync.cue --game alice
  linksync resync -c linksync.yaml --discord 81234 --pairing vip`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResync(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "pairing configuration (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: settings.database)")
	cmd.Flags().StringVar(&opts.Game, "game", "", "game account to reconcile")
	cmd.Flags().StringVar(&opts.Discord, "discord", "", "discord account to reconcile")
	cmd.Flags().StringVar(&opts.Pairing, "pairing", "", "only this pairing (name or group/role)")
	_ = cmd.MarkFlagRequired("config")
	cmd.MarkFlagsMutuallyExclusive("game", "discord")
	cmd.MarkFlagsOneRequired("game", "discord")

	return cmd
}

func runResync(opts *ResyncOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, configCode(err), "cannot load configuration", err)
	}
	rt, err := openRuntime(ctx, cfg, opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot start engine", err)
	}
	defer rt.Close()

	if opts.Pairing != "" {
		p, ok := rt.pairing(opts.Pairing)
		if !ok {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown pairing %q", opts.Pairing), nil)
		}
		game, discord, err := rt.resolve(ctx, ir.GameActor(opts.Game), ir.DiscordActor(opts.Discord))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "account lookup failed", err)
		}
		rt.engine.Resync(ctx, p, game, discord)
	} else if opts.Game != "" {
		rt.engine.ResyncAll(ctx, ir.GameActor(opts.Game))
	} else {
		rt.engine.ResyncAllDiscord(ctx, ir.DiscordActor(opts.Discord))
	}

	return emitOutcomes(formatter, rt.outcomes.All())
}

// resolve completes an actor pair from the link table. An unlinked
// account leaves the other side empty, which reconciles as NOT_LINKED.
func (rt *runtime) resolve(ctx context.Context, game ir.GameActor, discord ir.DiscordActor) (ir.GameActor, ir.DiscordActor, error) {
	var err error
	if game != "" {
		discord, _, err = rt.store.DiscordFor(ctx, game)
	} else {
		game, _, err = rt.store.GameFor(ctx, discord)
	}
	return game, discord, err
}

// emitOutcomes prints outcomes in seq order and turns failures into
// exit code 1.
func emitOutcomes(formatter *OutputFormatter, outcomes []ir.Outcome) error {
	slices.SortFunc(outcomes, func(a, b ir.Outcome) int { return cmp.Compare(a.Seq, b.Seq) })
	result := OutcomesResult{Outcomes: toRows(outcomes)}
	result.Failed = failed(result.Outcomes)

	if err := formatter.Emit(result, func(w io.Writer) { printOutcomes(w, result.Outcomes) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d pairing(s) failed", result.Failed))
	}
	return nil
}

func printOutcomes(w io.Writer, rows []outcomeRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No pairings matched.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tORIGIN\tPAIRING\tGAME\tDISCORD\tRESULT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Seq, r.Origin, r.Pairing, dash(r.GameActor), dash(r.DiscordActor), r.Result)
	}
	_ = tw.Flush()
	for _, r := range rows {
		if r.Error != "" {
			fmt.Fprintf(w, "  [%d] %s\n", r.Seq, r.Error)
		}
	}
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
