package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/engine"
	"github.com/roach88/linksync/internal/groupsync"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/metrics"
	"github.com/roach88/linksync/internal/store"
)

// runtime is an engine wired to the SQLite snapshot store: the store backs
// both sides, links accounts and journals every outcome.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	engine   *engine.Engine
	outcomes *outcomeRecorder
	rejected int
}

// loadConfig loads path for commands that run the engine. A file that
// cannot be read or parsed, or a bad settings block, is an error. Bad
// pairing entries are logged and skipped; the rest still load.
func loadConfig(path string) (*config.Config, error) {
	cfg, errs := config.Load(path)
	if cfg == nil {
		return nil, errors.Join(errs...)
	}
	var fatal []error
	for _, err := range errs {
		if configCode(err) == config.ErrCodeSettings {
			fatal = append(fatal, err)
			continue
		}
		slog.Warn("pairing skipped", "path", path, "error", err)
	}
	if len(fatal) > 0 {
		return nil, errors.Join(fatal...)
	}
	return cfg, nil
}

// configCode returns the config error code of err, or ErrCodeGeneric.
func configCode(err error) string {
	var ce *config.CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeGeneric
}

// openRuntime opens the database (the --db flag wins over the settings
// block) and builds a configured engine over it.
func openRuntime(ctx context.Context, cfg *config.Config, dbPath string, extra ...engine.Option) (*runtime, error) {
	if dbPath == "" {
		dbPath = cfg.Settings.Database
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rec := &outcomeRecorder{}
	acc := groupsync.New(st, st, groupsync.WithInherited(cfg.Settings.IncludeInherited))
	opts := []engine.Option{
		engine.WithRoster(acc),
		engine.WithJournal(st),
		engine.WithObserver(rec),
		engine.WithSeqClock(engine.NewClockAt(maxSeq)),
	}
	if cfg.Settings.ExpectationTTL > 0 {
		opts = append(opts, engine.WithExpectationTTL(cfg.Settings.ExpectationTTL))
	}
	if cfg.Settings.SweepInterval > 0 {
		opts = append(opts, engine.WithSweepInterval(cfg.Settings.SweepInterval))
	}
	if cfg.Settings.QueueSize > 0 {
		opts = append(opts, engine.WithQueueSize(cfg.Settings.QueueSize))
	}
	eng := engine.New(acc, st, append(opts, extra...)...)

	// The registry logs each rejection; the accepted pairings still run.
	rejected := eng.Configure(cfg.Pairings)
	if len(rejected) > 0 {
		slog.Warn("running with accepted pairings only", "rejected", len(rejected), "active", len(eng.Pairings()))
	}
	slog.Debug("runtime ready", "database", dbPath, "pairings", len(eng.Pairings()), "resume_seq", maxSeq)

	return &runtime{cfg: cfg, store: st, engine: eng, outcomes: rec, rejected: len(rejected)}, nil
}

// pairing finds an active pairing by name or by its "group[@context]/role"
// label.
func (rt *runtime) pairing(label string) (ir.Pairing, bool) {
	for _, st := range rt.engine.Pairings() {
		if st.Name != label && st.Key.String() != label {
			continue
		}
		for _, p := range rt.engine.ByGame(st.Key.Game) {
			if p.Key() == st.Key {
				return p, true
			}
		}
	}
	return ir.Pairing{}, false
}

func (rt *runtime) Close() {
	rt.engine.Close()
	if err := rt.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// outcomeRecorder keeps every outcome of one command and forwards all
// events to the metrics counters.
type outcomeRecorder struct {
	metrics.Observer

	mu       sync.Mutex
	outcomes []ir.Outcome
}

func (r *outcomeRecorder) Outcome(o ir.Outcome) {
	r.Observer.Outcome(o)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) All() []ir.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Outcome(nil), r.outcomes...)
}

// outcomeRow is the CLI rendering of one outcome.
type outcomeRow struct {
	Seq          int64  `json:"seq"`
	Flow         string `json:"flow"`
	Origin       string `json:"origin"`
	Pairing      string `json:"pairing"`
	GameActor    string `json:"game_actor,omitempty"`
	DiscordActor string `json:"discord_actor,omitempty"`
	Result       string `json:"result"`
	Error        string `json:"error,omitempty"`
}

func toRow(o ir.Outcome, errText string) outcomeRow {
	return outcomeRow{
		Seq:          o.Seq,
		Flow:         o.FlowToken,
		Origin:       string(o.Origin),
		Pairing:      o.Pairing.Label(),
		GameActor:    string(o.GameActor),
		DiscordActor: string(o.DiscordActor),
		Result:       string(o.Result),
		Error:        errText,
	}
}

func toRows(outcomes []ir.Outcome) []outcomeRow {
	rows := make([]outcomeRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = toRow(o, o.ErrorText())
	}
	return rows
}

// failed counts outcomes that carry a failure (NOT_LINKED,
// BACKEND_FAILURE). WRONG_DIRECTION is policy, not failure.
func failed(rows []outcomeRow) int {
	n := 0
	for _, r := range rows {
		if r.Error != "" {
			n++
		}
	}
	return n
}
