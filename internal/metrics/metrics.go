package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds all Prometheus metrics for the integration layer
type Metrics struct {
	// OAuth flow
	OAuthConnectTotal *prometheus.CounterVec
	OAuthDeniedTotal  *prometheus.CounterVec

	// Token lifecycle
	TokensRefreshedTotal *prometheus.CounterVec

	// Outbound provider calls
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	// Calendar sync
	SyncRunsTotal    *prometheus.CounterVec
	SyncRunDuration  *prometheus.HistogramVec
	SyncActionsTotal *prometheus.CounterVec

	// Integrations
	IntegrationsConnected *prometheus.GaugeVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// If enabled=true, returns Prometheus-based Metrics; if enabled=false,
// returns NoopMetrics (zero overhead). Uses sync.Once so Prometheus
// metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		OAuthConnectTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_oauth_connect_total",
				Help: "Total number of OAuth connect attempts completing at the callback",
			},
			[]string{"provider", "result"},
		),
		OAuthDeniedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_oauth_denied_total",
				Help: "Total number of user-denied consent screens",
			},
			[]string{"provider"},
		),

		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_tokens_refreshed_total",
				Help: "Total number of access token refreshes",
			},
			[]string{"provider", "result"},
		),

		ProviderCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_provider_calls_total",
				Help: "Total number of outbound provider API calls",
			},
			[]string{"provider", "operation", "outcome"},
		),
		ProviderCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "integration_provider_call_duration_seconds",
				Help:    "Duration of outbound provider API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),

		SyncRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_sync_runs_total",
				Help: "Total number of calendar sync runs",
			},
			[]string{"provider", "result"},
		),
		SyncRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "integration_sync_run_duration_seconds",
				Help:    "Duration of calendar sync runs",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		SyncActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integration_sync_actions_total",
				Help: "Sync log actions written, by classification",
			},
			[]string{"provider", "action"},
		),

		IntegrationsConnected: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "integration_connected",
				Help: "Current number of connected integrations per provider",
			},
			[]string{"provider"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
	}
}

// RecordOAuthConnect records an OAuth callback completion
func (m *Metrics) RecordOAuthConnect(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.OAuthConnectTotal.WithLabelValues(provider, result).Inc()
}

// RecordOAuthDenied records a user-denied consent screen
func (m *Metrics) RecordOAuthDenied(provider string) {
	m.OAuthDeniedTotal.WithLabelValues(provider).Inc()
}

// RecordTokenRefresh records a token refresh attempt
func (m *Metrics) RecordTokenRefresh(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(provider, result).Inc()
}

// RecordProviderCall records one outbound provider API call.
// outcome: success, rate_limited, auth_failed, api_error, network_error
func (m *Metrics) RecordProviderCall(provider, operation, outcome string, duration time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordSyncRun records a completed sync run
func (m *Metrics) RecordSyncRun(provider string, success bool, duration time.Duration) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.SyncRunsTotal.WithLabelValues(provider, result).Inc()
	m.SyncRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSyncActions records the classification counts of one sync run
func (m *Metrics) RecordSyncActions(provider string, created, updated, cancelled, skipped int) {
	m.SyncActionsTotal.WithLabelValues(provider, "created").Add(float64(created))
	m.SyncActionsTotal.WithLabelValues(provider, "updated").Add(float64(updated))
	m.SyncActionsTotal.WithLabelValues(provider, "cancelled").Add(float64(cancelled))
	m.SyncActionsTotal.WithLabelValues(provider, "skipped").Add(float64(skipped))
}

// SetConnectedIntegrations sets the connected-integration gauge (for periodic updates)
func (m *Metrics) SetConnectedIntegrations(provider string, count int) {
	m.IntegrationsConnected.WithLabelValues(provider).Set(float64(count))
}

// RecordDatabaseQueryError records a database query error
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
