package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// QuotadUsagePercent tracks the usage percentage of a quota cycle
	QuotadUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quotad_usage_percent",
			Help: "Current usage percentage for an account quota cycle",
		},
		[]string{"account_id", "cycle"},
	)

	// QuotadResetSeconds tracks the seconds until the cycle resets
	QuotadResetSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quotad_reset_seconds",
			Help: "Seconds until the quota cycle is expected to reset",
		},
		[]string{"account_id", "cycle"},
	)

	// QuotadLearnedIntervalSeconds tracks the learned cycle interval
	QuotadLearnedIntervalSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quotad_learned_interval_seconds",
			Help: "Learned periodic reset interval for an account cycle",
		},
		[]string{"account_id", "cycle"},
	)

	// QuotadConfidence tracks the learning engine's confidence
	QuotadConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quotad_confidence",
			Help: "Confidence that the learned reset interval is stable",
		},
		[]string{"account_id", "cycle"},
	)

	// QuotadFetchTotal counts fetch outcomes per account
	QuotadFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_fetch_total",
			Help: "Total number of account fetches by outcome",
		},
		[]string{"account_id", "outcome"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(QuotadUsagePercent)
	prometheus.MustRegister(QuotadResetSeconds)
	prometheus.MustRegister(QuotadLearnedIntervalSeconds)
	prometheus.MustRegister(QuotadConfidence)
	prometheus.MustRegister(QuotadFetchTotal)
}
