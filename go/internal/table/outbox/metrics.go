package outbox

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andarbahar_outbox_publish_attempts_total",
			Help: "Outbox publish attempts by event type, attempt number and status",
		},
		[]string{"event_type", "attempt", "status"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "andarbahar_outbox_publish_duration_seconds",
			Help:    "Time to publish one outbox event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "andarbahar_outbox_batch_size",
			Help:    "Events relayed per fallback sweep",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "andarbahar_outbox_batch_duration_seconds",
			Help:    "Duration of a fallback sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	outboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "andarbahar_outbox_lag",
			Help: "Unsent outbox rows seen by the last sweep",
		},
	)
)

func recordPublish(eventType string, attempt int, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	eventsPublished.WithLabelValues(eventType, strconv.Itoa(attempt), status).Inc()
	publishDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func recordBatch(count int, d time.Duration) {
	batchSize.Observe(float64(count))
	batchDuration.Observe(d.Seconds())
}

func recordLag(n int) {
	outboxLag.Set(float64(n))
}
