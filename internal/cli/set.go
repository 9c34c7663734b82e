package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/engine"
	"github.com/roach88/linksync/internal/ir"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Config   string
	Database string
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set game|discord <actor> <id> <true|false>",
		Short: "Change membership in the snapshot store and sync it",
		Long: `Apply one membership change to the snapshot store, as the game server or
Discord would, and let the engine propagate it to the paired side.

"set parent <group[@context]> <parent>" records group inheritance
instead; it is not a membership change and triggers no sync.

Examples:
  linksync set -c linksync.cue game alice vip@survival true
  linksync set -c linksync.cue discord 81234 1122334455 false
  linksync set -c linksync.cue parent vip@survival donor`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "pairing configuration (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: settings.database)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSet(opts *SetOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	var (
		side  ir.Side
		state bool
	)
	if args[0] == "parent" {
		if len(args) != 3 {
			return NewExitError(ExitCommandError, "usage: set parent <group[@context]> <parent>")
		}
	} else {
		var err error
		if side, err = ir.ParseSide(args[0]); err != nil {
			return NewExitError(ExitCommandError, err.Error())
		}
		if len(args) != 4 {
			return NewExitError(ExitCommandError, "usage: set game|discord <actor> <id> <true|false>")
		}
		if state, err = strconv.ParseBool(args[3]); err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid state %q: want true or false", args[3]))
		}
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, configCode(err), "cannot load configuration", err)
	}
	rt, err := openRuntime(ctx, cfg, opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot start engine", err)
	}
	defer rt.Close()

	if args[0] == "parent" {
		if err := rt.store.AddParent(ctx, ir.ParseGameID(args[1]), args[2]); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot record parent", err)
		}
		return formatter.Emit(map[string]string{"group": args[1], "parent": args[2]}, func(w io.Writer) {
			fmt.Fprintf(w, "✓ %s inherits from %s\n", ir.ParseGameID(args[1]), ir.NormalizeName(args[2]))
		})
	}

	// The store reports the change to the engine's queue only if a row
	// actually changed. The engine's own writes are not fed back: the
	// process exits once the queue is drained.
	rt.store.SetNotifier(rt.engine)
	if side == ir.SideGame {
		err = setGame(ctx, rt, ir.GameActor(args[1]), ir.ParseGameID(args[2]), state)
	} else {
		err = setDiscord(ctx, rt, ir.DiscordActor(args[1]), ir.DiscordID(args[2]), state)
	}
	rt.store.SetNotifier(nil)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "cannot apply change", err)
	}

	drain(ctx, rt.engine)
	return emitOutcomes(formatter, rt.outcomes.All())
}

func setGame(ctx context.Context, rt *runtime, actor ir.GameActor, id ir.GameID, state bool) error {
	if state {
		return rt.store.AddGroup(ctx, actor, id)
	}
	return rt.store.RemoveGroup(ctx, actor, id)
}

func setDiscord(ctx context.Context, rt *runtime, actor ir.DiscordActor, id ir.DiscordID, state bool) error {
	if state {
		return rt.store.AddRole(ctx, actor, id)
	}
	return rt.store.RemoveRole(ctx, actor, id)
}

// drain closes intake and runs the engine until the queued notifications
// are processed.
func drain(ctx context.Context, eng *engine.Engine) {
	eng.Close()
	_ = eng.Run(ctx)
}
