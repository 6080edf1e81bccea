package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reload triggers.
const (
	TriggerMount    = "mount"
	TriggerExplicit = "explicit"
	TriggerRealtime = "realtime"
)

var (
	// DashboardsMounted tracks the dashboards currently held by registries.
	DashboardsMounted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricetracker_dashboards_mounted",
			Help: "Number of mounted user dashboards",
		},
	)

	// DashboardReloads counts product list reloads by trigger and outcome.
	DashboardReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_dashboard_reloads_total",
			Help: "Total number of dashboard product list reloads",
		},
		[]string{"trigger", "outcome"},
	)

	// DashboardChangeEvents counts realtime change events received by dashboards.
	DashboardChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_dashboard_change_events_total",
			Help: "Total number of realtime change events received by dashboards",
		},
		[]string{"type"},
	)
)
