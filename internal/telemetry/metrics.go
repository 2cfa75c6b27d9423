package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/livequiz/internal/errors"
)

const namespace = "livequiz"

var (
	sessionOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "operations_total",
		Help:      "Session operations by operation and result code.",
	}, []string{"operation", "code"})

	sessionOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "operation_duration_seconds",
		Help:      "Latency of session operations including persistence.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	sessionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "save_retries_total",
		Help:      "Load-mutate-save cycles retried after a concurrent modification.",
	}, []string{"operation"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "event",
		Name:      "published_total",
		Help:      "Domain events published on the bus.",
	}, []string{"event"})
)

// ObserveSessionOperation records the outcome of one session operation started at start.
func ObserveSessionOperation(op string, start time.Time, err error) {
	code := "OK"
	if err != nil {
		code = errors.Convert(err).Code.String()
	}

	sessionOperations.WithLabelValues(op, code).Inc()
	sessionOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func CountSessionRetry(op string) {
	sessionRetries.WithLabelValues(op).Inc()
}

func CountEvent(name string) {
	eventsPublished.WithLabelValues(name).Inc()
}
