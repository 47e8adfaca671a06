package automation

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the automation subsystem.
type Metrics struct {
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ChannelSends   *prometheus.CounterVec
}

// NewMetrics registers and returns automation metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_automation_actions_total",
			Help: "Automation actions by action type and outcome.",
		}, []string{"action", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vendorwatch_automation_action_duration_seconds",
			Help:    "Duration of automation side-effect calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"action"}),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_alert_channel_sends_total",
			Help: "Alert channel deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}

	reg.MustRegister(
		m.ActionsTotal,
		m.ActionDuration,
		m.ChannelSends,
	)
	return m
}
