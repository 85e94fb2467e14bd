package swbusd

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
)

// Metrics holds the runtime's process-wide counters. expvar is kept for
// simple process counters exactly as the teacher does for its own topic
// count (server/hub.go's topicsLive *expvar.Int); the richer per-next-hop
// and per-outcome breakdowns use prometheus, which the teacher already
// depends on for its own stats (spec SPEC_FULL.md DOMAIN STACK).
type Metrics struct {
	handlersLive *expvar.Int

	routesInstalled prometheus.Gauge
	messagesRouted  *prometheus.CounterVec
	queueFullDrops  prometheus.Counter
	mailboxDepth    *prometheus.GaugeVec
}

// NewMetrics registers a fresh set of prometheus metrics against reg;
// registering twice against the same registerer panics. The expvar
// handler count is published once per process and shared by every
// Metrics created in it, so several runtimes (each with its own
// registerer) can coexist in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	handlersLive, ok := expvar.Get("SwbusHandlersLive").(*expvar.Int)
	if !ok {
		handlersLive = expvar.NewInt("SwbusHandlersLive")
	}
	m := &Metrics{
		handlersLive: handlersLive,
		routesInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swbus_routes_installed",
			Help: "Number of routes currently installed in the multiplexer's route table.",
		}),
		messagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swbus_messages_routed_total",
			Help: "Messages routed, partitioned by next hop type and outcome.",
		}, []string{"next_hop_type", "outcome"}),
		queueFullDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swbus_queue_full_drops_total",
			Help: "Messages dropped because a connection or handler mailbox queue was full.",
		}),
		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swbus_handler_mailbox_depth",
			Help: "Current queue depth of a handler's mailbox.",
		}, []string{"service_path"}),
	}
	reg.MustRegister(m.routesInstalled, m.messagesRouted, m.queueFullDrops, m.mailboxDepth)
	return m
}

func (m *Metrics) observeRouted(nextHopType NextHopType, outcome string) {
	if m == nil {
		return
	}
	m.messagesRouted.WithLabelValues(nextHopType.metricsLabel(), outcome).Inc()
}

func (m *Metrics) incHandlersLive() {
	if m == nil {
		return
	}
	m.handlersLive.Add(1)
}

func (m *Metrics) decHandlersLive() {
	if m == nil {
		return
	}
	m.handlersLive.Add(-1)
}

func (m *Metrics) setRoutesInstalled(n int) {
	if m == nil {
		return
	}
	m.routesInstalled.Set(float64(n))
}

func (m *Metrics) observeQueueFullDrop() {
	if m == nil {
		return
	}
	m.queueFullDrops.Inc()
}

func (m *Metrics) observeMailboxDepth(sp servicepath.ServicePath, depth int) {
	if m == nil {
		return
	}
	m.mailboxDepth.WithLabelValues(sp.String()).Set(float64(depth))
}

func (m *Metrics) deleteMailboxDepth(sp servicepath.ServicePath) {
	if m == nil {
		return
	}
	m.mailboxDepth.DeleteLabelValues(sp.String())
}

func (nt NextHopType) metricsLabel() string {
	if nt == NextHopLocal {
		return "local"
	}
	return "remote"
}
