package tray

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricIconCreates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "icon_creates_total",
		Help:      "Total number of successful icon registrations with the shell",
	})
	metricShellRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "shell_restarts_total",
		Help:      "Total number of shell restart notifications handled",
	})
	metricVersionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "version_negotiation_failures_total",
		Help:      "Total number of version negotiations where no candidate was accepted",
	})
	metricOverlayOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "overlay_opens_total",
		Help:      "Total number of committed overlay opens, per overlay kind",
	}, []string{"overlay"})
	metricOverlayCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "overlay_preview_canceled_total",
		Help:      "Total number of overlay transitions canceled by a preview listener, per overlay kind and phase",
	}, []string{"overlay", "phase"})
	metricClickActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "click_actions_total",
		Help:      "Total number of deferred single-click actions, per result (executed/superseded)",
	}, []string{"result"})
	metricBalloonTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traykit",
		Subsystem: "tray",
		Name:      "balloon_timeouts_total",
		Help:      "Total number of custom balloon auto-close timer expiries",
	})
)
