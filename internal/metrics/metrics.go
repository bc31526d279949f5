// Package metrics exposes Prometheus counters for the rebalancing pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the process metrics registry. All methods are nil-safe so
// callers constructed without metrics (tests, the simulator) can pass nil.
type Recorder struct {
	registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	orders       *prometheus.CounterVec
	trades       *prometheus.CounterVec
	tickDuration prometheus.Histogram
}

// New creates a Recorder with its own registry, including the standard Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorbot_cycles_total",
			Help: "Trading cycles run, by source and outcome",
		}, []string{"source", "outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorbot_trigger_decisions_total",
			Help: "Trigger decisions, by direction",
		}, []string{"direction"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorbot_guardrail_blocks_total",
			Help: "Guardrail blocks, by reason",
		}, []string{"reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorbot_orders_total",
			Help: "Orders created, by side and status",
		}, []string{"side", "status"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchorbot_trades_total",
			Help: "Executions recorded, by status",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchorbot_worker_tick_duration_seconds",
			Help:    "Duration of one scheduler tick across all positions",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.cycles, r.decisions, r.blocks, r.orders, r.trades, r.tickDuration)
	return r
}

// Handler returns the /metrics HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Cycle counts a completed cycle with the given outcome label.
func (r *Recorder) Cycle(source, outcome string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(source, outcome).Inc()
}

// Decision counts a trigger decision.
func (r *Recorder) Decision(direction string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(direction).Inc()
}

// Block counts a guardrail or policy block.
func (r *Recorder) Block(reason string) {
	if r == nil {
		return
	}
	r.blocks.WithLabelValues(reason).Inc()
}

// Order counts a created order.
func (r *Recorder) Order(side, status string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(side, status).Inc()
}

// Trade counts a recorded execution.
func (r *Recorder) Trade(status string) {
	if r == nil {
		return
	}
	r.trades.WithLabelValues(status).Inc()
}

// TickDuration observes a scheduler tick duration in seconds.
func (r *Recorder) TickDuration(seconds float64) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(seconds)
}
