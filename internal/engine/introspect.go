package engine

import (
	"time"

	"github.com/roach88/linksync/internal/ir"
)

// PairingStatus is the operational view of one active pairing.
type PairingStatus struct {
	Name        string        `json:"name,omitempty"`
	Key         ir.PairKey    `json:"key"`
	Direction   ir.Direction  `json:"direction"`
	TieBreaker  ir.Side       `json:"tie_breaker"`
	Timer       *ir.TimerSpec `json:"timer,omitempty"`
	TimerActive bool          `json:"timer_active"`
	Period      string        `json:"period,omitempty"`
	Ticks       int           `json:"ticks"`
}

// Pairings lists the active pairings in configuration order, with
// whether each has a scheduled resync running. For visibility only.
func (e *Engine) Pairings() []PairingStatus {
	pairings := e.reg.All()

	e.confMu.Lock()
	ts := e.timers
	e.confMu.Unlock()

	out := make([]PairingStatus, len(pairings))
	for i, p := range pairings {
		st := PairingStatus{
			Name:       p.Name,
			Key:        p.Key(),
			Direction:  p.Direction,
			TieBreaker: p.TieBreaker,
			Timer:      p.Timer,
		}
		if ts != nil {
			ts.mu.RLock()
			if every, ok := ts.active[p.Key()]; ok {
				st.TimerActive = true
				st.Period = every.String()
				st.Ticks = ts.ticks[p.Key()]
			}
			ts.mu.RUnlock()
		}
		out[i] = st
	}
	return out
}

// ExpectationTTL returns the configured echo-suppression window.
func (e *Engine) ExpectationTTL() time.Duration {
	return e.gameExpect.TTL()
}

// PendingExpectations returns the number of stored expectations per side,
// expired entries not yet swept included.
func (e *Engine) PendingExpectations() (game, discord int) {
	return e.gameExpect.Len(), e.discordExpect.Len()
}

// QueueDepth returns the number of queued notifications per source.
func (e *Engine) QueueDepth() (game, discord int) {
	return e.gameQ.Len(), e.discordQ.Len()
}
