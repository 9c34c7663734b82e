package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/engine"
)

// PairsResult lists the pairings a configuration activates.
type PairsResult struct {
	Source   string                 `json:"source"`
	Pairings []engine.PairingStatus `json:"pairings"`
}

// NewPairsCommand creates the pairs command.
func NewPairsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairs <config>",
		Short: "List the pairings a configuration activates",
		Long: `Load a configuration into an engine and list the active pairings with
their direction, tie-breaker and resync timer.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPairs(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runPairs(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(path)
	if err != nil {
		return formatter.Fail(ExitFailure, configCode(err), "cannot load configuration", err)
	}

	// No stores: the engine is only used to normalize and index.
	eng := engine.New(nil, nil)
	defer eng.Close()
	if rejected := eng.Configure(cfg.Pairings); len(rejected) > 0 {
		formatter.VerboseLog("%d pairing(s) rejected; run validate for details", len(rejected))
	}

	result := PairsResult{Source: cfg.Source, Pairings: eng.Pairings()}
	return formatter.Emit(result, func(w io.Writer) {
		if len(result.Pairings) == 0 {
			fmt.Fprintln(w, "No pairings configured.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tGAME\tDISCORD\tDIRECTION\tTIE-BREAKER\tTIMER")
		for _, p := range result.Pairings {
			name := p.Name
			if name == "" {
				name = "-"
			}
			timer := "-"
			if p.TimerActive {
				timer = "every " + p.Period
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				name, p.Key.Game, p.Key.Discord, p.Direction, p.TieBreaker, timer)
		}
		_ = tw.Flush()
	})
}
