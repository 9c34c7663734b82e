package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roach88/linksync/internal/ir"
)

// timerSet is the group of periodic resync goroutines started by one
// Configure call. It is replaced wholesale on the next Configure.
type timerSet struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	active map[ir.PairKey]time.Duration // pairing -> period
	ticks  map[ir.PairKey]int           // completed ticks per pairing
}

// startTimers launches one goroutine per pairing with an active timer.
// Caller holds confMu.
func (e *Engine) startTimers(pairings []ir.Pairing) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	ts := &timerSet{
		cancel: cancel,
		active: make(map[ir.PairKey]time.Duration),
		ticks:  make(map[ir.PairKey]int),
	}

	for _, p := range pairings {
		if !p.Timer.Active() {
			continue
		}
		every, ok := timerPeriod(p.Timer.CycleMinutes, e.timerUnit)
		if !ok {
			slog.Error("resync timer not started: cycle out of range",
				"pairing", p.Label(),
				"cycle_minutes", p.Timer.CycleMinutes,
			)
			continue
		}
		ts.active[p.Key()] = every

		ts.wg.Add(1)
		go func() {
			defer ts.wg.Done()
			e.runTimer(ctx, ts, p, every)
		}()
	}

	if len(ts.active) > 0 {
		slog.Info("resync timers started", "count", len(ts.active))
	}
	e.timers = ts
}

// timerPeriod converts a cycle length in timer units to a ticker period.
// It reports false when the period is not positive or would overflow.
func timerPeriod(minutes uint, unit time.Duration) (time.Duration, bool) {
	if minutes == 0 || unit <= 0 || uint64(minutes) > uint64(math.MaxInt64/int64(unit)) {
		return 0, false
	}
	return time.Duration(minutes) * unit, true
}

// stopTimers cancels the current timer set and waits for every timer
// goroutine, including one mid-resync, to return. Caller holds confMu.
func (e *Engine) stopTimers() {
	ts := e.timers
	if ts == nil {
		return
	}
	ts.cancel()
	ts.wg.Wait()

	ts.mu.Lock()
	n := len(ts.active)
	ts.active = map[ir.PairKey]time.Duration{}
	ts.mu.Unlock()

	if n > 0 {
		slog.Info("resync timers stopped", "count", n)
	}
}

func (e *Engine) runTimer(ctx context.Context, ts *timerSet, p ir.Pairing, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, p)
			ts.mu.Lock()
			ts.ticks[p.Key()]++
			ts.mu.Unlock()
		}
	}
}

// tick runs one timer resync with panic recovery so a single bad tick
// does not kill the pairing's timer.
func (e *Engine) tick(ctx context.Context, p ir.Pairing) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("timer resync panicked", "pairing", p.Label(), "panic", r)
		}
	}()

	if e.roster == nil {
		slog.Warn("timer resync skipped: no roster configured", "pairing", p.Label())
		return
	}

	outcomes := e.ResyncTimer(ctx, p)
	mutated := 0
	for _, o := range outcomes {
		if o.Result.Mutated() {
			mutated++
		}
	}
	slog.Debug("timer resync finished",
		"pairing", p.Label(),
		"outcomes", len(outcomes),
		"mutated", mutated,
	)
}
