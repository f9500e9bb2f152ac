// Package monitoring exposes Prometheus metrics for the recovery pipeline
// and a background health checker for the ledger.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_events_total",
			Help: "Sale events received, by source (webhook, import)",
		},
		[]string{"source"},
	)

	ActionTagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_action_tags_total",
			Help: "Action tags assigned to canonical records",
		},
		[]string{"tag"},
	)

	SinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_sink_writes_total",
			Help: "Sink writes by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	SinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recovery_sink_duration_seconds",
			Help:    "Time spent writing one record to a sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	WarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_warnings_total",
			Help: "Non-fatal warnings by kind",
		},
		[]string{"kind"},
	)

	LedgerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recovery_ledger_up",
			Help: "Whether the last ledger health check succeeded (1) or failed (0)",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(ActionTagsTotal)
	prometheus.MustRegister(SinkWritesTotal)
	prometheus.MustRegister(SinkDuration)
	prometheus.MustRegister(WarningsTotal)
	prometheus.MustRegister(LedgerUp)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSinkWrite counts one sink write and observes its duration.
func RecordSinkWrite(sink, outcome string, d time.Duration) {
	SinkWritesTotal.WithLabelValues(sink, outcome).Inc()
	SinkDuration.WithLabelValues(sink).Observe(d.Seconds())
}

// RecordTags counts each assigned action tag.
func RecordTags(tags []string) {
	for _, t := range tags {
		ActionTagsTotal.WithLabelValues(t).Inc()
	}
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
