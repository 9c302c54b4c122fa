package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "machrent"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow step transitions by flow, source step and direction.",
		},
		[]string{"flow", "step", "direction"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rental_submissions_total",
			Help:      "Rental submissions by flow and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_sessions_active",
			Help:      "Booking sessions currently held in the registry.",
		},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Backend requests by operation and result category.",
		},
		[]string{"operation", "result"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Backend request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	receipts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Receipt deliveries by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			transitions,
			submissions,
			activeSessions,
			gatewayRequests,
			gatewayDuration,
			receipts,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveTransition(flow, step, direction string) {
	transitions.WithLabelValues(flow, step, direction).Inc()
}

func IncSubmission(flow, outcome string) {
	submissions.WithLabelValues(flow, outcome).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// ObserveGateway records one backend call.
func ObserveGateway(operation, result string, took time.Duration) {
	gatewayRequests.WithLabelValues(operation, result).Inc()
	gatewayDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func IncReceipt(outcome string) {
	receipts.WithLabelValues(outcome).Inc()
}
