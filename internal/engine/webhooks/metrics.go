package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockpulse",
		Subsystem: "webhooks",
		Name:      "delivery_attempts_total",
		Help:      "Delivery attempts by final attempt status.",
	}, []string{"status"})

	deliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blockpulse",
		Subsystem: "webhooks",
		Name:      "delivery_latency_seconds",
		Help:      "Receiver response latency for attempts that got a response.",
		Buckets:   prometheus.DefBuckets,
	})

	scheduledRetries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockpulse",
		Subsystem: "webhooks",
		Name:      "scheduled_retries",
		Help:      "Retry timers currently armed.",
	})
)
