package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PassCount  = "count"
	PassAssign = "assign"
)

var (
	registerOnce sync.Once

	records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "decode",
			Name:      "records_total",
			Help:      "Records decoded, frame markers included.",
		},
		[]string{"pass"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "decode",
			Name:      "events_total",
			Help:      "Pixel events decoded.",
		},
		[]string{"pass"},
	)
	invalid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "decode",
			Name:      "invalid_events_total",
			Help:      "Events dropped by the grid or ROI filter.",
		},
		[]string{"pass"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "decode",
			Name:      "frames_total",
			Help:      "Frame markers decoded.",
		},
		[]string{"pass"},
	)
	passDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tofmap",
			Subsystem: "decode",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one decode pass.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"pass"},
	)
	ingestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Ingest messages received by type.",
		},
		[]string{"type"},
	)
	ingestFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Subsystem: "ingest",
			Name:      "decode_failures_total",
			Help:      "Ingest messages that could not be decoded.",
		},
	)
	seriesDone = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tofmap",
			Name:      "series_total",
			Help:      "Series processed by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(records, events, invalid, frames, passDuration, ingestMessages, ingestFailures, seriesDone)
	})
}

func RecordPass(pass string, nRecords, nEvents, nInvalid, nFrames uint64, duration time.Duration) {
	records.WithLabelValues(pass).Add(float64(nRecords))
	events.WithLabelValues(pass).Add(float64(nEvents))
	invalid.WithLabelValues(pass).Add(float64(nInvalid))
	frames.WithLabelValues(pass).Add(float64(nFrames))
	passDuration.WithLabelValues(pass).Observe(duration.Seconds())
}

func RecordIngestMessage(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	ingestMessages.WithLabelValues(kind).Inc()
}

func RecordIngestFailure() {
	ingestFailures.Inc()
}

func RecordSeries(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	seriesDone.WithLabelValues(outcome).Inc()
}
