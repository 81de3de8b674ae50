// Package metrics exposes lamp counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the lamp collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks             prometheus.Counter
	TickErrors        prometheus.Counter
	ActiveTransitions prometheus.Gauge
	Commands          *prometheus.CounterVec
	ProvisioningState prometheus.Gauge
	DroppedEvents     prometheus.CounterFunc
}

// New creates and registers the collectors. dropped reports the event bus
// drop count; it may be nil.
func New(dropped func() int64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lampd_ticks_total",
			Help: "Number of transition engine ticks.",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lampd_tick_errors_total",
			Help: "Number of ticks whose output write failed.",
		}),
		ActiveTransitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lampd_active_transitions",
			Help: "Transitions active after the last tick.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lampd_commands_total",
			Help: "Lamp commands handled, by route.",
		}, []string{"route"}),
		ProvisioningState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lampd_provisioning_state",
			Help: "Current provisioning state (0 check_storage, 1 client_ready, 2 awaiting_credentials, 3 persist, 4 handoff).",
		}),
	}

	if dropped == nil {
		dropped = func() int64 { return 0 }
	}
	m.DroppedEvents = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "lampd_events_dropped_total",
		Help: "Events the bus discarded because its queue was full.",
	}, func() float64 { return float64(dropped()) })

	m.registry.MustRegister(
		m.Ticks,
		m.TickErrors,
		m.ActiveTransitions,
		m.Commands,
		m.ProvisioningState,
		m.DroppedEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTick records one tick of the lamp loop.
func (m *Metrics) ObserveTick(active int, err error) {
	m.Ticks.Inc()
	if err != nil {
		m.TickErrors.Inc()
	}
	m.ActiveTransitions.Set(float64(active))
}

// ObserveCommand counts one handled command.
func (m *Metrics) ObserveCommand(route string) {
	m.Commands.WithLabelValues(route).Inc()
}

// SetProvisioningState records the provisioning step.
func (m *Metrics) SetProvisioningState(state int) {
	m.ProvisioningState.Set(float64(state))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
