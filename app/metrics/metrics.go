package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodeRPCs counts outbound node RPCs by operation and outcome.
	NodeRPCs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_node_rpc_total",
		Help: "Outbound node RPC calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// PollFailures counts per-node failures during monitor ticks.
	PollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_node_poll_failures_total",
		Help: "Node health poll failures.",
	})

	// Placements counts placement decisions by outcome.
	Placements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_placements_total",
		Help: "Placement decisions by outcome.",
	}, []string{"outcome"})

	// PluginInstallFailures counts best-effort default plugin installs
	// that failed during provisioning.
	PluginInstallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_plugin_install_failures_total",
		Help: "Failed default plugin installs during provisioning.",
	})

	// ConsoleSessions gauges live console relay sessions.
	ConsoleSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_console_sessions",
		Help: "Active console relay sessions.",
	})
)
