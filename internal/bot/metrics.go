package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bot's own Prometheus series; workflow and gateway series
// live in internal/metrics.
type Metrics struct {
	UpdatesProcessed     *prometheus.CounterVec
	UpdateProcessingTime prometheus.Histogram
	ErrorsTotal          prometheus.Counter
	RateLimited          prometheus.Counter
	ReceiptsSent         prometheus.Counter
}

// NewMetrics registers the series on reg, or on the default registry when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UpdatesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_updates_total",
			Help: "Telegram updates processed by kind",
		}, []string{"kind"}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_errors_total",
			Help: "Panics recovered and failed sends",
		}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_rate_limited_total",
			Help: "Updates dropped by the per-user rate limit",
		}),

		ReceiptsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_receipts_sent_total",
			Help: "Rental receipts delivered as documents",
		}),
	}
}
