package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/store"
)

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Database string
	Unlink   bool
}

// LinkResult reports a link change.
type LinkResult struct {
	GameActor    string `json:"game_actor"`
	DiscordActor string `json:"discord_actor,omitempty"`
	Linked       bool   `json:"linked"`
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link <game-actor> [discord-actor]",
		Short: "Link or unlink a game account and a Discord account",
		Long: `Record that a game account and a Discord account belong to the same
person. Either account's previous link is replaced. With --unlink, the
game account's link is removed.

Linking changes no memberships; run resync to reconcile the pair.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultDatabase, "path to SQLite database")
	cmd.Flags().BoolVar(&opts.Unlink, "unlink", false, "remove the game account's link")

	return cmd
}

func runLink(opts *LinkOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	if opts.Unlink != (len(args) == 1) {
		return NewExitError(ExitCommandError, "link needs both accounts, or one with --unlink")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot open database", err)
	}
	defer st.Close()

	game := ir.GameActor(args[0])
	result := LinkResult{GameActor: args[0]}
	if opts.Unlink {
		err = st.Unlink(ctx, game)
	} else {
		result.DiscordActor = args[1]
		result.Linked = true
		err = st.Link(ctx, game, ir.DiscordActor(args[1]))
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot update link", err)
	}

	return formatter.Emit(result, func(w io.Writer) {
		if result.Linked {
			fmt.Fprintf(w, "✓ linked %s <-> %s\n", result.GameActor, result.DiscordActor)
		} else {
			fmt.Fprintf(w, "✓ unlinked %s\n", result.GameActor)
		}
	})
}
