package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Settlement operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Markets & funds ---
	MarketsOpen   prometheus.Gauge
	EscrowBalance prometheus.Gauge
	PayoutTotal   prometheus.Counter

	// --- Events ---
	EventsEmitted   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
	PublishDuration prometheus.Histogram
	EventLogWritten prometheus.Counter
	EventLogErrors  prometheus.Counter
	EventLogLastSeq prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000025, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.002, 0.005, 0.01, 0.025, 0.05,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_ops_applied_total",
			Help: "Settlement operations committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_ops_rejected_total",
			Help: "Settlement operations rejected, by error class",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_op_duration_seconds",
			Help:    "Time to execute one settlement operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		MarketsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "settle_markets_open",
			Help: "Markets currently accepting bets",
		}),

		EscrowBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "settle_escrow_balance_lamports",
			Help: "Total funds held across market escrow accounts",
		}),

		PayoutTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_payout_total_lamports",
			Help: "Total winnings disbursed",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_events_emitted_total",
			Help: "Settlement events emitted by the engine",
		}, []string{"event_type"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_events_published_total",
			Help: "Settlement events published to NATS",
		}, []string{"event_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_publish_errors_total",
			Help: "NATS publish failures after retries",
		}),

		PublishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "settle_publish_duration_seconds",
			Help:    "NATS publish latency",
			Buckets: opBuckets,
		}),

		EventLogWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_event_log_written_total",
			Help: "Events written to the Postgres event log",
		}),

		EventLogErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_event_log_errors_total",
			Help: "Event log write failures",
		}),

		EventLogLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "settle_event_log_last_sequence",
			Help: "Last sequence written to the event log",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"route"}),
	}
}
