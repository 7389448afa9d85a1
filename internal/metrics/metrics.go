package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassenwart_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kassenwart_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	FeeRecomputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassenwart_fee_recomputations_total",
			Help: "Total number of registration fee recomputations",
		},
		[]string{"event"},
	)

	FinanceLogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassenwart_finance_log_entries_total",
			Help: "Total number of finance log entries appended",
		},
		[]string{"code"},
	)

	TransactionsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kassenwart_lastschrift_transactions_generated_total",
			Help: "Total number of direct debit transactions generated",
		},
	)

	TransactionsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassenwart_lastschrift_transactions_finalized_total",
			Help: "Total number of direct debit transactions finalized",
		},
		[]string{"outcome"},
	)

	SepaExportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kassenwart_sepa_exports_total",
			Help: "Total number of pain.008 exports",
		},
	)

	MandatesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kassenwart_mandates_active",
			Help: "Number of active direct debit mandates",
		},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kassenwart_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kassenwart_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordFeeRecomputation(event string) {
	FeeRecomputationsTotal.WithLabelValues(event).Inc()
}

func RecordFinanceLogEntry(code string) {
	FinanceLogEntriesTotal.WithLabelValues(code).Inc()
}

func RecordTransactionGenerated() {
	TransactionsGeneratedTotal.Inc()
}

func RecordTransactionFinalized(outcome string) {
	TransactionsFinalizedTotal.WithLabelValues(outcome).Inc()
}

func RecordSepaExport() {
	SepaExportsTotal.Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
