// Package metrics exposes simulation counters and gauges to Prometheus on a
// dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motelsim"

// Gauges are read at scrape time. Every func must be safe to call from the
// HTTP goroutine.
type Gauges struct {
	ActiveAgents  func() float64
	PooledAgents  func() float64
	QueueLength   func() float64
	RoomsTotal    func() float64
	RoomsOccupied func() float64
}

// Metrics holds the collectors updated by the simulation loop.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks       prometheus.Counter
	Transitions *prometheus.CounterVec
	Spawns      prometheus.Counter
	Recycles    *prometheus.CounterVec
	Claims      *prometheus.CounterVec
	Payments    prometheus.Counter
	Revenue     prometheus.Counter
	Exhausted   prometheus.Counter
}

// New creates the collectors and registers them with gauges on a fresh
// registry. Nil gauge funcs are skipped.
func New(g Gauges) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Scheduling ticks processed.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "transitions_total",
			Help: "Agent state transitions by source and target state.",
		}, []string{"from", "to"}),
		Spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "activations_total",
			Help: "Pooled agents activated.",
		}),
		Recycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "recycles_total",
			Help: "Agents returned to the pool by reason.",
		}, []string{"reason"}),
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rooms", Name: "claims_total",
			Help: "Room claim attempts by result.",
		}, []string{"result"}),
		Payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "billing", Name: "payments_total",
			Help: "Settled room payments.",
		}),
		Revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "billing", Name: "revenue_total",
			Help: "Settled room revenue.",
		}),
		Exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "spawner", Name: "pool_exhausted_total",
			Help: "Activations skipped because the pool was empty.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.Ticks, m.Transitions, m.Spawns, m.Recycles, m.Claims,
		m.Payments, m.Revenue, m.Exhausted,
	)

	gauge := func(subsystem, name, help string, fn func() float64) {
		if fn == nil {
			return
		}
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, fn))
	}
	gauge("agent", "active", "Agents currently active.", g.ActiveAgents)
	gauge("agent", "pooled", "Agents waiting in the pool.", g.PooledAgents)
	gauge("counter", "queue_length", "Customers in the counter queue.", g.QueueLength)
	gauge("rooms", "total", "Rooms known to the registry.", g.RoomsTotal)
	gauge("rooms", "occupied", "Rooms currently held.", g.RoomsOccupied)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
