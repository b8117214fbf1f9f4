package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "records_total",
		Help:      "Number of successfully applied progress increments per exercise.",
	}, []string{"exercise"})

	crossingsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "goal_crossings_total",
		Help:      "Number of first-time goal crossings per exercise.",
	}, []string{"exercise"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "rejected_commands_total",
		Help:      "Number of log commands rejected before reaching the store, by reason.",
	}, []string{"reason"})

	applyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "progress_service",
		Subsystem: "store",
		Name:      "apply_duration_seconds",
		Help:      "Latency of atomic store increments.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	lastRecordGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "last_record_timestamp_seconds",
		Help:      "Unix timestamp of the most recent applied increment.",
	})
)

func init() {
	prometheus.MustRegister(recordsCounter, crossingsCounter, rejectedCounter, applyDuration, lastRecordGauge)
}

// RecordProgress updates the per-exercise counter and the watermark gauge.
func RecordProgress(exerciseID string, ts time.Time) {
	recordsCounter.WithLabelValues(exerciseID).Inc()
	if !ts.IsZero() {
		lastRecordGauge.Set(float64(ts.Unix()))
	}
}

// RecordCrossing counts a first-time goal crossing.
func RecordCrossing(exerciseID string) {
	crossingsCounter.WithLabelValues(exerciseID).Inc()
}

// RecordRejected counts a command rejected by validation.
func RecordRejected(reason string) {
	rejectedCounter.WithLabelValues(reason).Inc()
}

// ObserveApply records the latency of one atomic store update.
func ObserveApply(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	applyDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
