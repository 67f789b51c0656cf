package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"session"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of per-frame pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to a roster identity",
	})

	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "verdicts_total",
		Help:      "Compliance verdicts computed, by overall status",
	}, []string{"overall"})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "events_total",
		Help:      "Compliance events by outcome (recorded, throttled, failed)",
	}, []string{"outcome"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "enrollments_total",
		Help:      "Enrollment attempts by result",
	}, []string{"result"})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gate",
		Name:      "active_sessions",
		Help:      "Number of running gate and enrollment sessions",
	}, []string{"session"})

	RosterSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gate",
		Name:      "roster_identities",
		Help:      "Number of identities in the current roster snapshot",
	})

	RosterVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gate",
		Name:      "roster_version",
		Help:      "Version of the current roster snapshot",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gate",
		Name:      "ws_connections",
		Help:      "Number of active event hub WebSocket connections",
	})

	BreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gate",
		Name:      "event_store_breaker_open",
		Help:      "1 while the event store circuit breaker is open",
	})
)
