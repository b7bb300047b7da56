package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInit_Disabled(t *testing.T) {
	recorder := Init(false)
	_, isNoop := recorder.(*NoopMetrics)
	assert.True(t, isNoop)
}

func TestInit_EnabledIsSingleton(t *testing.T) {
	first := Init(true)
	second := Init(true)
	assert.Same(t, first, second)
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	recorder := NewNoopMetrics()
	recorder.RecordOAuthConnect("ms365", true)
	recorder.RecordOAuthDenied("ms365")
	recorder.RecordTokenRefresh("google_calendar", false)
	recorder.RecordProviderCall("ms365", "fetch_events", "success", time.Second)
	recorder.RecordSyncRun("ms365", true, time.Second)
	recorder.RecordSyncActions("ms365", 1, 2, 3, 4)
	recorder.SetConnectedIntegrations("ms365", 5)
	recorder.RecordDatabaseQueryError("list_integrations")
}

func TestPrometheusMetrics_Record(t *testing.T) {
	recorder := Init(true)

	// Exercises label combinations; panics on mismatched cardinality.
	recorder.RecordOAuthConnect("ms365", true)
	recorder.RecordOAuthConnect("ms365", false)
	recorder.RecordOAuthDenied("google_calendar")
	recorder.RecordTokenRefresh("ms365", true)
	recorder.RecordProviderCall("ms365", "fetch_events", "rate_limited", 2*time.Second)
	recorder.RecordSyncRun("google_calendar", false, 5*time.Second)
	recorder.RecordSyncActions("google_calendar", 0, 1, 0, 7)
	recorder.SetConnectedIntegrations("ms365", 12)
	recorder.RecordDatabaseQueryError("append_sync_log")
}
