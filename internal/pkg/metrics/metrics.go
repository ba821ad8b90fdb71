package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cexgate_actions_total",
		Help: "The total number of unary actions processed",
	}, []string{"action", "exchange", "status"})

	PolicyRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cexgate_policy_rejects_total",
		Help: "Total policy engine rejections",
	}, []string{"kind"})

	PolicyReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cexgate_policy_reloads_total",
		Help: "Policy snapshot reload attempts",
	}, []string{"result"})

	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cexgate_stream_events_total",
		Help: "Events pushed to streaming subscribers",
	}, []string{"type"})

	StreamsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cexgate_streams_active",
		Help: "Currently running subscription loops",
	}, []string{"type"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cexgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
