package metrics

import "time"

// Recorder is the metrics surface used by the integration services.
// Implementations: Metrics (Prometheus) and NoopMetrics (disabled).
type Recorder interface {
	// OAuth flow
	RecordOAuthConnect(provider string, success bool)
	RecordOAuthDenied(provider string)

	// Token lifecycle
	RecordTokenRefresh(provider string, success bool)

	// Outbound provider calls
	RecordProviderCall(provider, operation, outcome string, duration time.Duration)

	// Calendar sync
	RecordSyncRun(provider string, success bool, duration time.Duration)
	RecordSyncActions(provider string, created, updated, cancelled, skipped int)

	// Gauge setters for periodic updates
	SetConnectedIntegrations(provider string, count int)

	// Database
	RecordDatabaseQueryError(operation string)
}
