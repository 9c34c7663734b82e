package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/linksync/internal/expect"
	"github.com/roach88/linksync/internal/ir"
	"github.com/roach88/linksync/internal/registry"
)

// Engine is the bidirectional membership sync engine.
//
// Thread-safety model:
//   - GameChanged, DiscordChanged, Resync, ResyncAll, ResyncTimer: safe
//     from any goroutine, for any mix of actors. No engine lock is held
//     across a store call.
//   - OnExternalGameChange, OnExternalDiscordChange: safe from any
//     goroutine; they only enqueue.
//   - Configure: serialized internally; stops timers, swaps the registry
//     and starts new timers as one step.
//   - Run: drains the notification queues; call from one goroutine.
type Engine struct {
	acc    Accessors
	linker Linker
	roster Roster

	reg           *registry.Registry
	gameExpect    *expect.Cache
	discordExpect *expect.Cache

	seq      *Clock
	flowGen  FlowTokenGenerator
	journal  Journal
	observer Observer

	// settings, fixed after New
	ttl           time.Duration
	wallClock     expect.Clock
	sweepInterval time.Duration
	timerUnit     time.Duration
	queueSize     int
	validator     registry.ValidatorFunc

	gameQ    *notificationQueue
	discordQ *notificationQueue

	// confMu serializes Configure and Close.
	confMu sync.Mutex
	timers *timerSet

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closeOnce  sync.Once
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithRoster enables the timer path. Without a roster, timer ticks are
// logged and skipped.
func WithRoster(r Roster) Option {
	return func(e *Engine) { e.roster = r }
}

// WithExpectationTTL sets how long a recorded expectation suppresses its
// echo. Default: expect.DefaultTTL (30s).
func WithExpectationTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithWallClock injects the time source used for expectation expiry.
func WithWallClock(c expect.Clock) Option {
	return func(e *Engine) { e.wallClock = c }
}

// WithSweepInterval sets how often Run sweeps expired expectations.
// Default: the expectation TTL.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepInterval = d }
}

// WithSeqClock replaces the logical clock, e.g. to resume after the
// highest seq already journaled.
func WithSeqClock(c *Clock) Option {
	return func(e *Engine) { e.seq = c }
}

// WithFlowGenerator replaces the UUIDv7 flow token generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) { e.flowGen = g }
}

// WithJournal persists every outcome.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithObserver reports outcomes and drops, typically to metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithValidator adds an external pairing check to Configure.
func WithValidator(v registry.ValidatorFunc) Option {
	return func(e *Engine) { e.validator = v }
}

// WithTimerUnit sets the length of one timer "minute". Default:
// time.Minute. Tests shorten it to milliseconds.
func WithTimerUnit(d time.Duration) Option {
	return func(e *Engine) { e.timerUnit = d }
}

// WithQueueSize sets the per-source notification queue capacity.
// Default: DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// New creates an Engine over the given accessors and account linker.
// Both must be non-nil. The engine starts with no pairings; call Configure.
func New(acc Accessors, linker Linker, opts ...Option) *Engine {
	e := &Engine{
		acc:       acc,
		linker:    linker,
		seq:       NewClock(),
		flowGen:   UUIDv7Generator{},
		observer:  noopObserver{},
		ttl:       expect.DefaultTTL,
		timerUnit: time.Minute,
		queueSize: DefaultQueueSize,
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	cacheOpts := []expect.Option{expect.WithTTL(e.ttl), expect.WithClock(e.wallClock)}
	e.gameExpect = expect.New(string(ir.SideGame), cacheOpts...)
	e.discordExpect = expect.New(string(ir.SideDiscord), cacheOpts...)
	if e.sweepInterval <= 0 {
		e.sweepInterval = e.gameExpect.TTL()
	}

	var regOpts []registry.Option
	if e.validator != nil {
		regOpts = append(regOpts, registry.WithValidator(e.validator))
	}
	e.reg = registry.New(regOpts...)

	e.gameQ = newNotificationQueue(e.queueSize)
	e.discordQ = newNotificationQueue(e.queueSize)
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	return e
}

// Configure replaces the active pairing set.
//
// Running timers are cancelled and joined before the registry swap, so no
// timer can fire against a pairing that is no longer configured. Invalid
// and duplicate pairings are returned (and logged) without stopping the
// rest of the set from loading.
func (e *Engine) Configure(pairings []ir.Pairing) []error {
	e.confMu.Lock()
	defer e.confMu.Unlock()

	e.stopTimers()

	rejected := e.reg.Configure(pairings)
	if len(rejected) > 0 {
		e.observer.PairingsRejected(len(rejected))
	}

	if e.baseCtx.Err() == nil {
		e.startTimers(e.reg.All())
	}
	return rejected
}

// ByGame returns the active pairings that reference id.
func (e *Engine) ByGame(id ir.GameID) []ir.Pairing {
	return e.reg.ByGame(ir.NormalizeGameID(id))
}

// ByDiscord returns the active pairings that reference id.
func (e *Engine) ByDiscord(id ir.DiscordID) []ir.Pairing {
	return e.reg.ByDiscord(ir.NormalizeDiscordID(id))
}

// OnExternalGameChange queues a game-side notification for Run.
// It never blocks; a full or closed queue returns a RuntimeError and the
// notification is dropped.
func (e *Engine) OnExternalGameChange(actor ir.GameActor, group ir.GameID, state bool) error {
	return e.enqueue(e.gameQ, Notification{
		Source:    ir.SideGame,
		GameActor: actor,
		GameID:    group,
		State:     state,
	})
}

// OnExternalDiscordChange queues a discord-side notification for Run.
func (e *Engine) OnExternalDiscordChange(actor ir.DiscordActor, role ir.DiscordID, state bool) error {
	return e.enqueue(e.discordQ, Notification{
		Source:       ir.SideDiscord,
		DiscordActor: actor,
		DiscordID:    role,
		State:        state,
	})
}

func (e *Engine) enqueue(q *notificationQueue, n Notification) error {
	if err := q.Enqueue(n); err != nil {
		e.observer.NotificationDropped(n.Source)
		slog.Warn("notification dropped",
			"source", n.Source,
			"game_actor", n.GameActor,
			"game_id", n.GameID.String(),
			"discord_actor", n.DiscordActor,
			"discord_id", n.DiscordID,
			"error", err,
		)
		return err
	}
	return nil
}

// Run drains both notification queues, one goroutine per source, and
// sweeps expired expectations. Blocks until ctx is cancelled, or until
// Close has been called and both queues are drained. Returns ctx.Err().
//
// ERROR HANDLING: a failing or panicking notification is logged and the
// loop continues with the next one.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "pairings", e.reg.Len())

	g, gctx := errgroup.WithContext(ctx)
	sweepCtx, stopSweep := context.WithCancel(gctx)
	defer stopSweep()

	var drains sync.WaitGroup
	drains.Add(2)
	for _, q := range []*notificationQueue{e.gameQ, e.discordQ} {
		g.Go(func() error {
			defer drains.Done()
			return e.drain(gctx, q)
		})
	}
	// Sweepers stop once both queues are closed and drained.
	g.Go(func() error {
		drains.Wait()
		stopSweep()
		return nil
	})
	g.Go(func() error { e.gameExpect.Run(sweepCtx, e.sweepInterval); return nil })
	g.Go(func() error { e.discordExpect.Run(sweepCtx, e.sweepInterval); return nil })

	_ = g.Wait()
	slog.Info("engine stopped")
	return ctx.Err()
}

func (e *Engine) drain(ctx context.Context, q *notificationQueue) error {
	for {
		if n, ok := q.TryDequeue(); ok {
			e.deliver(ctx, n)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.Wait():
			// The signal channel is closed on Close; stop once drained.
			if q.Drained() {
				return nil
			}
		}
	}
}

// deliver processes one notification with panic recovery.
func (e *Engine) deliver(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification handler panicked",
				"source", n.Source,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	switch n.Source {
	case ir.SideGame:
		e.GameChanged(ctx, n.GameActor, n.GameID, n.State)
	case ir.SideDiscord:
		e.DiscordChanged(ctx, n.DiscordActor, n.DiscordID, n.State)
	default:
		slog.Error("notification with unknown source", "source", n.Source)
	}
}

// Close stops all timers and notification intake. Notifications already
// queued are still delivered by an active Run, which then returns.
// Close is idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.confMu.Lock()
		defer e.confMu.Unlock()

		e.stopTimers()
		e.gameQ.Close()
		e.discordQ.Close()
		e.baseCancel()
	})
}

// newFlow returns the correlation token for one entry call.
func (e *Engine) newFlow() string {
	return e.flowGen.Generate()
}

// record stamps, logs, journals and reports one outcome.
func (e *Engine) record(ctx context.Context, o ir.Outcome) ir.Outcome {
	o.Seq = e.seq.Next()

	attrs := []any{
		"seq", o.Seq,
		"flow", o.FlowToken,
		"origin", o.Origin,
		"pairing", o.Pairing.Label(),
		"game_actor", o.GameActor,
		"discord_actor", o.DiscordActor,
		"result", o.Result,
	}
	if o.Result.Success() {
		slog.Debug("sync outcome", attrs...)
	} else {
		slog.Warn("sync outcome", append(attrs, "error", o.ErrorText())...)
	}

	e.observer.Outcome(o)
	if e.journal != nil {
		if err := e.journal.Append(context.WithoutCancel(ctx), o); err != nil {
			slog.Error("journal append failed", "seq", o.Seq, "flow", o.FlowToken, "error", err)
		}
	}
	return o
}
