// ABOUTME: Prometheus metrics for the clock loop
// ABOUTME: Resync attempts and failures, drift and host offset gauges, redraw counts
package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resyncAttemptsN = "dozclock_resync_attempts_total"
	resyncFailuresN = "dozclock_resync_failures_total"
	driftOffsetN    = "dozclock_drift_offset_milliseconds"
	hostOffsetN     = "dozclock_host_offset_seconds"
	redrawsN        = "dozclock_redraws_total"
)

type clockMetrics struct {
	resyncAttempts prometheus.Counter
	resyncFailures prometheus.Counter
	driftOffset    prometheus.Gauge
	hostOffset     prometheus.Gauge
	redraws        *prometheus.CounterVec
}

func newClockMetrics(reg prometheus.Registerer) *clockMetrics {
	f := promauto.With(reg)
	return &clockMetrics{
		resyncAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: resyncAttemptsN,
			Help: "The number of times the clock asked its time authority for a reading",
		}),
		resyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: resyncFailuresN,
			Help: "The number of time authority readings that failed",
		}),
		driftOffset: f.NewGauge(prometheus.GaugeOpts{
			Name: driftOffsetN,
			Help: "Coarse clock minus monotonic counter since the last anchor",
		}),
		hostOffset: f.NewGauge(prometheus.GaugeOpts{
			Name: hostOffsetN,
			Help: "Correction applied to the host clock at the last resync",
		}),
		redraws: f.NewCounterVec(prometheus.CounterOpts{
			Name: redrawsN,
			Help: "The number of display line updates",
		}, []string{"line"}),
	}
}
