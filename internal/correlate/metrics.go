package correlate

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the correlation subsystem.
type Metrics struct {
	ScansTotal        *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	IncidentsIngested *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	MatchConfidence   prometheus.Histogram
}

// NewMetrics registers and returns correlation metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_scans_total",
			Help: "Batch scans by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vendorwatch_scan_duration_seconds",
			Help:    "Duration of batch scans in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		IncidentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_incidents_ingested_total",
			Help: "Incident upserts by outcome (created vs updated).",
		}, []string{"outcome"}),
		MatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_matches_total",
			Help: "New tracking records by match method.",
		}, []string{"method"}),
		MatchConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vendorwatch_match_confidence",
			Help:    "Confidence of matches that created tracking records.",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11), // 0.5 .. 1.0
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.IncidentsIngested,
		m.MatchesTotal,
		m.MatchConfidence,
	)
	return m
}
