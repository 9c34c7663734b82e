// Package metrics exposes engine activity as Prometheus counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/linksync/internal/ir"
)

var (
	Outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linksync_outcomes_total",
		Help: "Reconciliation outcomes by result tag and origin.",
	}, []string{"result", "origin"})

	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linksync_mutations_total",
		Help: "Membership writes issued, by target side.",
	}, []string{"side"})

	EchoesSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linksync_echoes_suppressed_total",
		Help: "Notifications recognised as echoes of our own writes.",
	}, []string{"side"})

	NotificationsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linksync_notifications_dropped_total",
		Help: "Notifications rejected because the source queue was full or closed.",
	}, []string{"side"})

	PairingsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linksync_pairings_rejected_total",
		Help: "Pairings rejected by configuration loads.",
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Outcomes, Mutations, EchoesSuppressed, NotificationsDropped, PairingsRejected,
	}
}

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(collectors()...)
	})
}

// Source is the part of the engine the gauges read.
type Source interface {
	QueueDepth() (game, discord int)
	PendingExpectations() (game, discord int)
}

// Gauges returns gauge collectors sampling src at scrape time.
func Gauges(src Source) []prometheus.Collector {
	var out []prometheus.Collector
	for _, g := range []struct {
		name, help string
		read       func() (int, int)
	}{
		{"linksync_queue_depth", "Queued notifications per source.", src.QueueDepth},
		{"linksync_pending_expectations", "Unconsumed expectations per side.", src.PendingExpectations},
	} {
		out = append(out,
			perSide(g.name, g.help, ir.SideGame, func() int { n, _ := g.read(); return n }),
			perSide(g.name, g.help, ir.SideDiscord, func() int { _, n := g.read(); return n }),
		)
	}
	return out
}

func perSide(name, help string, side ir.Side, read func() int) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"side": string(side)},
	}, func() float64 { return float64(read()) })
}

// Observer feeds engine events into the package counters. It implements
// engine.Observer.
type Observer struct{}

func (Observer) Outcome(o ir.Outcome) {
	Outcomes.WithLabelValues(string(o.Result), string(o.Origin)).Inc()
	switch o.Result {
	case ir.ResultAddGame, ir.ResultRemoveGame:
		Mutations.WithLabelValues(string(ir.SideGame)).Inc()
	case ir.ResultAddDiscord, ir.ResultRemoveDiscord:
		Mutations.WithLabelValues(string(ir.SideDiscord)).Inc()
	}
}

func (Observer) EchoSuppressed(side ir.Side) {
	EchoesSuppressed.WithLabelValues(string(side)).Inc()
}

func (Observer) NotificationDropped(side ir.Side) {
	NotificationsDropped.WithLabelValues(string(side)).Inc()
}

func (Observer) PairingsRejected(n int) {
	PairingsRejected.Add(float64(n))
}
