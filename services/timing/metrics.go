package timing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the analysis service.
// A nil *Metrics records nothing.
type Metrics struct {
	analyses  *prometheus.CounterVec
	intervals *prometheus.CounterVec
	skipped   prometheus.Counter
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perftrace_analyses_total",
			Help: "Analyses served, by cache outcome.",
		}, []string{"cache"}),
		intervals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perftrace_intervals_total",
			Help: "Correlated intervals, by match status.",
		}, []string{"status"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perftrace_entries_skipped_total",
			Help: "Capture records rejected as malformed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perftrace_analysis_duration_seconds",
			Help:    "Time spent decoding, correlating and storing one analysis.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.analyses, m.intervals, m.skipped, m.duration)
	return m
}

func (m *Metrics) observe(a *Analysis, cached bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	m.analyses.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if cached {
		return
	}

	matched := a.MatchedCount()
	m.intervals.WithLabelValues(StatusMatched.String()).Add(float64(matched))
	m.intervals.WithLabelValues(StatusUnmatched.String()).Add(float64(len(a.Results) - matched))
	m.skipped.Add(float64(len(a.Skipped)))
}
