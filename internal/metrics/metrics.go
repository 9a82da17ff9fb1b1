// Package metrics exposes ambient, non-spec Prometheus counters for the
// rollout and scan engines, grounded on the collector shape in
// internal/agent/instrumentation/metrics: one struct bundling named
// Counter/Gauge/CounterVec fields, constructed once and injected into the
// components that observe them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	routersByOutcomeName = "routerfleet_router_updates_total"
	rolloutsStartedName  = "routerfleet_rollouts_started_total"
	scansRunName         = "routerfleet_scans_run_total"
	activeRoutersName    = "routerfleet_active_router_count"

	labelOutcome = "outcome"
)

// Collector bundles the counters observed by the rollout and scan engines.
type Collector struct {
	RoutersByOutcome *prometheus.CounterVec
	RolloutsStarted  prometheus.Counter
	ScansRun         prometheus.Counter
	ActiveRouters    prometheus.Gauge
}

// New constructs and registers a Collector against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RoutersByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: routersByOutcomeName,
			Help: "Router update attempts, partitioned by outcome.",
		}, []string{labelOutcome}),
		RolloutsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: rolloutsStartedName,
			Help: "Total number of rollouts started.",
		}),
		ScansRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: scansRunName,
			Help: "Total number of inventory scans run.",
		}),
		ActiveRouters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: activeRoutersName,
			Help: "Number of routers currently in the updating state.",
		}),
	}

	reg.MustRegister(c.RoutersByOutcome, c.RolloutsStarted, c.ScansRun, c.ActiveRouters)
	return c
}

// ObserveRouterSuccess records a successful router update.
func (c *Collector) ObserveRouterSuccess() {
	c.RoutersByOutcome.WithLabelValues("success").Inc()
}

// ObserveRouterFailure records a failed router update.
func (c *Collector) ObserveRouterFailure() {
	c.RoutersByOutcome.WithLabelValues("failure").Inc()
}
