package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/linksync/internal/engine"
	"github.com/roach88/linksync/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config      string
	Database    string
	MetricsAddr string

	// Ready, if set, is called with the metrics listener address (empty
	// when metrics are off) once the engine is running. For tests.
	Ready func(metricsAddr string)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine against the snapshot store",
		Long: `Start the linksync engine over the SQLite snapshot store.

Membership changes written to the store are propagated to the paired
side, pairings with a timer are resynced periodically, and every outcome
is journaled. SIGHUP reloads the pairing configuration; SIGINT or SIGTERM
stops the engine after the queued notifications are handled.

Example:
  linksync run -c linksync.cue --db ./linksync.db --metrics-addr :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "pairing configuration (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: settings.database)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: settings.metrics_addr)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("loading configuration", "path", opts.Config)
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	rt, err := openRuntime(ctx, cfg, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	defer rt.Close()
	rt.store.SetNotifier(rt.engine)
	defer rt.store.SetNotifier(nil)

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Settings.MetricsAddr
	}
	var ln net.Listener
	if metricsAddr != "" {
		if ln, err = net.Listen("tcp", metricsAddr); err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Run returns once ctx ends or, after Close, once the queues are
		// drained; either way the rest of the group stops with it.
		defer cancel()
		return rt.engine.Run(gctx)
	})
	if ln != nil {
		srv := metricsServer(rt.engine)
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		handleSignals(gctx, rt.engine.Close, func() { reload(rt, opts.Config) })
		return nil
	})

	slog.Info("engine started", "pairings", len(rt.engine.Pairings()), "metrics", metricsAddr)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Listening for membership changes...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		addr := ""
		if ln != nil {
			addr = ln.Addr().String()
		}
		opts.Ready(addr)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// metricsServer serves the package counters plus gauges over eng.
func metricsServer(eng *engine.Engine) *http.Server {
	metrics.Register()
	gauges := prometheus.NewRegistry()
	gauges.MustRegister(metrics.Gauges(eng)...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, gauges},
		promhttp.HandlerOpts{},
	))
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// handleSignals calls stop on SIGINT/SIGTERM and reload on SIGHUP, until
// ctx is done.
func handleSignals(ctx context.Context, stop, reload func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reload()
				continue
			}
			slog.Info("received signal, shutting down", "signal", sig)
			stop()
			return
		case <-ctx.Done():
			return
		}
	}
}

// reload re-reads the configuration and swaps the pairing set. A file
// that fails to compile keeps the current set.
func reload(rt *runtime, path string) {
	cfg, err := loadConfig(path)
	if err != nil {
		slog.Error("reload failed, keeping current pairings", "path", path, "error", err)
		return
	}
	rejected := rt.engine.Configure(cfg.Pairings)
	slog.Info("configuration reloaded", "pairings", len(rt.engine.Pairings()), "rejected", len(rejected))
}
