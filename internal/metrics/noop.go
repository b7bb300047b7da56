package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordOAuthConnect(provider string, success bool) {}
func (n *NoopMetrics) RecordOAuthDenied(provider string)                {}

func (n *NoopMetrics) RecordTokenRefresh(provider string, success bool) {}

func (n *NoopMetrics) RecordProviderCall(provider, operation, outcome string, duration time.Duration) {
}

func (n *NoopMetrics) RecordSyncRun(provider string, success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordSyncActions(provider string, created, updated, cancelled, skipped int) {
}

func (n *NoopMetrics) SetConnectedIntegrations(provider string, count int) {}

func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
