package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuromail_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuromail_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuromail_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// 上游调用指标
	UpstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuromail_upstream_attempts_total",
			Help: "Upstream attempts by outcome and credential source",
		},
		[]string{"outcome", "source"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuromail_upstream_request_duration_seconds",
			Help:    "Latency of logical upstream operations including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "result"},
	)

	UpstreamRetriesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuromail_upstream_retries_exhausted_total",
			Help: "Logical operations that failed after spending the whole retry budget",
		},
	)

	CredentialRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuromail_credential_rotations_total",
			Help: "Forced pool rotations caused by credential failures",
		},
	)

	ManagementAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuromail_management_access_total",
			Help: "Total number of management access decisions",
		},
		[]string{"result", "source"},
	)

	RateLimitRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuromail_ratelimit_rejected_total",
			Help: "Inbound requests rejected by the rate limiter",
		},
	)

	RateLimitKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuromail_ratelimit_keys",
			Help: "Per-client limiters currently tracked",
		},
	)

	// 邮箱指标
	NewEmailsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuromail_new_emails_total",
			Help: "New emails detected by background polling",
		},
	)

	FeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuromail_feed_clients",
			Help: "Connected WebSocket feed clients",
		},
	)

	// 存储指标
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuromail_storage_operation_duration_seconds",
			Help:    "Settings storage operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend", "operation", "result"},
	)
)
