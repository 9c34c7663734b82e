package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/ir"
)

func startRun(t *testing.T, e *Engine) (cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- e.Run(ctx) }()
	return cancel, ch
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ============================================================================
// Notification queues
// ============================================================================

func TestRun_DeliversQueuedNotifications(t *testing.T) {
	env := newTestEnv(t, []ir.Pairing{bidi(vip, role1)})
	env.b.SetDiscord(aliceD, role1, true)
	env.b.SetGame(carol, vip, true)

	cancel, done := startRun(t, env.e)
	defer cancel()

	require.NoError(t, env.e.OnExternalDiscordChange(aliceD, role1, true))
	require.NoError(t, env.e.OnExternalGameChange(carol, vip, true))

	require.Eventually(t, func() bool {
		return env.b.HasGame(alice, vip) && env.b.HasDiscord(carolD, role1)
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}

func TestRun_EchoesThroughQueueAreSuppressed(t *testing.T) {
	env := newTestEnv(t, []ir.Pairing{bidi(vip, role1)})
	env.b.SetDiscord(aliceD, role1, true)

	cancel, done := startRun(t, env.e)
	defer cancel()

	require.NoError(t, env.e.OnExternalDiscordChange(aliceD, role1, true))
	require.Eventually(t, func() bool { return env.b.HasGame(alice, vip) }, time.Second, time.Millisecond)

	for _, ec := range env.b.TakeEchoes() {
		require.NoError(t, env.e.OnExternalGameChange(ec.GameActor, ec.GameID, ec.State))
	}
	require.Eventually(t, func() bool { return env.obs.echoCount(ir.SideGame) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, env.journal.all(), 1)

	cancel()
	waitDone(t, done)
}

func TestRun_CloseDrainsQueue(t *testing.T) {
	env := newTestEnv(t, []ir.Pairing{bidi(vip, role1)})
	env.b.SetDiscord(aliceD, role1, true)

	// Queued before Run starts.
	require.NoError(t, env.e.OnExternalDiscordChange(aliceD, role1, true))
	env.e.Close()

	cancel, done := startRun(t, env.e)
	defer cancel()
	assert.NoError(t, waitDone(t, done))
	assert.True(t, env.b.HasGame(alice, vip))

	err := env.e.OnExternalDiscordChange(aliceD, role1, false)
	assert.True(t, IsClosed(err))
}

func TestRun_SurvivesPanickingHandler(t *testing.T) {
	env := newTestEnv(t, []ir.Pairing{bidi(vip, role1)})
	env.b.SetDiscord(aliceD, role1, true)
	env.b.SetDiscord(carolD, role1, true)

	// The flow generator is the one collaborator called outside guard.
	env.e.flowGen = &panicOnceGenerator{next: env.e.flowGen}

	cancel, done := startRun(t, env.e)
	defer cancel()

	require.NoError(t, env.e.OnExternalDiscordChange(aliceD, role1, true))
	require.NoError(t, env.e.OnExternalDiscordChange(carolD, role1, true))

	require.Eventually(t, func() bool { return env.b.HasGame(carol, vip) }, time.Second, time.Millisecond)
	assert.False(t, env.b.HasGame(alice, vip))

	cancel()
	waitDone(t, done)
}

type panicOnceGenerator struct {
	next FlowTokenGenerator
	once sync.Once
}

func (g *panicOnceGenerator) Generate() string {
	first := false
	g.once.Do(func() { first = true })
	if first {
		panic("token source exhausted")
	}
	return g.next.Generate()
}

func TestQueueFull(t *testing.T) {
	env := newTestEnv(t, []ir.Pairing{bidi(vip, role1)}, WithQueueSize(1))

	require.NoError(t, env.e.OnExternalDiscordChange(aliceD, role1, true))
	err := env.e.OnExternalDiscordChange(aliceD, role1, false)
	assert.True(t, IsQueueFull(err))

	// Sources are independent.
	assert.NoError(t, env.e.OnExternalGameChange(alice, vip, true))

	game, discord := env.e.QueueDepth()
	assert.Equal(t, 1, game)
	assert.Equal(t, 1, discord)
	assert.Equal(t, 1, env.obs.dropped[ir.SideDiscord])
}

// ============================================================================
// Timers
// ============================================================================

func TestTimer_CorrectsDrift(t *testing.T) {
	p := bidi(vip, role1)
	p.Timer = &ir.TimerSpec{CycleMinutes: 1, Enabled: true}
	env := newTestEnv(t, nil, WithTimerUnit(5*time.Millisecond))
	env.b.SetDiscord(aliceD, role1, true)

	require.Empty(t, env.e.Configure([]ir.Pairing{p}))

	require.Eventually(t, func() bool { return env.b.HasGame(alice, vip) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return env.e.Pairings()[0].Ticks > 0 }, time.Second, time.Millisecond)

	st := env.e.Pairings()[0]
	assert.True(t, st.TimerActive)
	assert.Equal(t, "5ms", st.Period)
	for _, o := range env.journal.all() {
		assert.Equal(t, ir.OriginTimer, o.Origin)
	}
}

func TestTimer_OversizedCycleRejected(t *testing.T) {
	p := bidi(vip, role1)
	p.Timer = &ir.TimerSpec{CycleMinutes: 200_000_000, Enabled: true}
	env := newTestEnv(t, nil)

	rejected := env.e.Configure([]ir.Pairing{p})
	require.Len(t, rejected, 1)
	assert.True(t, ir.IsFailureKind(rejected[0], ir.FailureConfigurationRejected))
	assert.Empty(t, env.e.Pairings())
}

func TestTimer_CycleOverflowingUnitNotScheduled(t *testing.T) {
	p := bidi(vip, role1)
	p.Timer = &ir.TimerSpec{CycleMinutes: ir.MaxCycleMinutes, Enabled: true}
	env := newTestEnv(t, nil, WithTimerUnit(time.Hour))

	require.Empty(t, env.e.Configure([]ir.Pairing{p}))
	st := env.e.Pairings()
	require.Len(t, st, 1)
	assert.False(t, st[0].TimerActive)
}

func TestTimerPeriod(t *testing.T) {
	tests := []struct {
		name    string
		minutes uint
		unit    time.Duration
		want    time.Duration
		ok      bool
	}{
		{"minutes", 5, time.Minute, 5 * time.Minute, true},
		{"test unit", 3, time.Millisecond, 3 * time.Millisecond, true},
		{"longest cycle", ir.MaxCycleMinutes, time.Minute, time.Duration(ir.MaxCycleMinutes) * time.Minute, true},
		{"zero cycle", 0, time.Minute, 0, false},
		{"zero unit", 5, 0, 0, false},
		{"overflow", ir.MaxCycleMinutes + 1, time.Minute, 0, false},
		{"far overflow", 200_000_000, time.Minute, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := timerPeriod(tt.minutes, tt.unit)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimer_StoppedOnReconfigure(t *testing.T) {
	p := bidi(vip, role1)
	p.Timer = &ir.TimerSpec{CycleMinutes: 1, Enabled: true}
	env := newTestEnv(t, []ir.Pairing{p}, WithTimerUnit(2*time.Millisecond))
	env.b.SetGame(alice, vip, true)

	require.Eventually(t, func() bool { return len(env.b.Calls()) > 0 }, time.Second, time.Millisecond)

	untimed := bidi(vip, role1)
	require.Empty(t, env.e.Configure([]ir.Pairing{untimed}))
	assert.False(t, env.e.Pairings()[0].TimerActive)

	// Configure joined the old timer goroutines; nothing fires afterwards.
	before := len(env.b.Calls())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, len(env.b.Calls()))
}

func TestTimer_StoppedOnClose(t *testing.T) {
	p := bidi(vip, role1)
	p.Timer = &ir.TimerSpec{CycleMinutes: 1, Enabled: true}
	env := newTestEnv(t, []ir.Pairing{p}, WithTimerUnit(2*time.Millisecond))
	env.b.SetGame(alice, vip, true)

	require.Eventually(t, func() bool { return len(env.b.Calls()) > 0 }, time.Second, time.Millisecond)
	env.e.Close()

	before := len(env.b.Calls())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, len(env.b.Calls()))

	// Configure after Close loads pairings but schedules nothing.
	require.Empty(t, env.e.Configure([]ir.Pairing{p}))
	assert.False(t, env.e.Pairings()[0].TimerActive)
}
