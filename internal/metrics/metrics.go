// Package metrics holds the prometheus collectors shared across bluebridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DOIVerifications counts DOI checks by resulting status
	DOIVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluebridge_doi_verifications_total",
		Help: "DOI verifications by status",
	}, []string{"status"})

	// Claims counts numerical claims by verification result
	Claims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluebridge_claims_total",
		Help: "Numerical claims checked against graph context, by result",
	}, []string{"result"})

	// ChainExecutions counts translation chain executions
	ChainExecutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bluebridge_chain_executions_total",
		Help: "Translation chains executed",
	})

	// ValidationRisk counts validated responses by provenance risk
	ValidationRisk = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bluebridge_validation_risk_total",
		Help: "Validated responses by provenance risk",
	}, []string{"risk"})

	// ValidationDuration observes end-to-end guardrail latency
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bluebridge_validation_duration_seconds",
		Help:    "Response validation duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)
