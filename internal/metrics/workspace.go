package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkspaceMetrics tracks session transitions and workspace lifecycle.
type WorkspaceMetrics struct {
	Transitions       *prometheus.CounterVec
	StaleResults      prometheus.Counter
	ActiveWorkspaces  prometheus.Gauge
	EvictedWorkspaces prometheus.Counter
}

// NewWorkspaceMetrics creates and registers workspace metrics on the given registry.
func NewWorkspaceMetrics(reg prometheus.Registerer) *WorkspaceMetrics {
	m := &WorkspaceMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Total number of session state transitions, by target state and reason.",
		}, []string{"to", "reason"}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_results_total",
			Help:      "Total number of module-list results discarded as stale.",
		}),
		ActiveWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "active",
			Help:      "Number of workspaces held in memory.",
		}),
		EvictedWorkspaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "evicted_total",
			Help:      "Total number of idle workspaces evicted from memory.",
		}),
	}

	reg.MustRegister(m.Transitions, m.StaleResults, m.ActiveWorkspaces, m.EvictedWorkspaces)
	return m
}
