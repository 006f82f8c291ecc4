// Package metrics exposes the Prometheus gauges backing the server's
// `/metrics` endpoint using the standard client_golang registration style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translate_active_sessions",
		Help: "Number of sessions currently held by the registry.",
	})

	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "translate_active_connections",
		Help: "Number of open WebSocket connections by role.",
	}, []string{"role"})

	AudioCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translate_audio_cache_bytes",
		Help: "Current on-disk footprint of the audio cache.",
	})

	SynthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translate_synthesis_requests_total",
		Help: "Upstream synthesis requests by outcome.",
	}, []string{"outcome"})

	TranslationsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translate_translations_broadcast_total",
		Help: "Translation frames broadcast to listeners.",
	})

	CostAlarmTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translate_cost_alarm_total",
		Help: "Cost threshold alarms raised.",
	})
)
