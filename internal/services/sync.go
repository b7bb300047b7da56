package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider/sheets"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
)

var (
	// ErrSyncUnsupported is returned for providers without a calendar surface
	ErrSyncUnsupported = errors.New("provider does not support calendar sync")

	// ErrPolicyViolation is returned when a cancellation arrives too close
	// to the event start.
	ErrPolicyViolation = errors.New("event starts too soon to cancel")
)

// cancelCutoff is the minimum lead time for cancelling an event.
const cancelCutoff = 15 * time.Minute

// createdRecency classifies an event as newly created when its upstream
// creation time is this recent.
const createdRecency = 24 * time.Hour

// SyncResult summarizes one sync run. Errors carries one entry per
// event that could not be recorded; the run itself still succeeds.
type SyncResult struct {
	Fetched   int         `json:"fetched"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Cancelled int         `json:"cancelled"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []SyncError `json:"errors,omitempty"`
}

// SyncError identifies one event whose sync-log write failed.
type SyncError struct {
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// SyncService is the calendar sync engine: it pulls provider events,
// classifies them, and appends idempotent sync-log rows. It also hosts
// the outbound event operations (create, update, cancel, availability)
// and the Sheets export.
type SyncService struct {
	store    *store.Store
	tokens   *TokenService
	audit    *AuditService
	metrics  metrics.Recorder
	adapters map[models.Provider]provider.CalendarAdapter
	sheets   *sheets.Adapter

	windowPast   time.Duration
	windowFuture time.Duration

	// appendEntry is the sync-log write seam, overridable in tests.
	appendEntry func(entry *models.SyncLog) (bool, error)
}

// NewSyncService wires the sync engine.
func NewSyncService(
	s *store.Store,
	tokens *TokenService,
	audit *AuditService,
	recorder metrics.Recorder,
	adapters map[models.Provider]provider.CalendarAdapter,
	sheetsAdapter *sheets.Adapter,
	windowPast, windowFuture time.Duration,
) *SyncService {
	svc := &SyncService{
		store:        s,
		tokens:       tokens,
		audit:        audit,
		metrics:      recorder,
		adapters:     adapters,
		sheets:       sheetsAdapter,
		windowPast:   windowPast,
		windowFuture: windowFuture,
	}
	svc.appendEntry = s.AppendSyncLog
	return svc
}

// Sync fetches the provider calendar inside the configured window and
// appends one sync-log row per observed action. Rows whose key already
// exists are counted as skipped, so reruns are safe. Individual row
// failures don't abort the run; a cancelled context does.
func (s *SyncService) Sync(ctx context.Context, unitID string, p models.Provider) (*SyncResult, error) {
	adapter, ok := s.adapters[p]
	if !ok {
		return nil, ErrSyncUnsupported
	}

	started := time.Now()
	window := provider.TimeWindow{
		Start: started.Add(-s.windowPast),
		End:   started.Add(s.windowFuture),
	}

	events, err := adapter.FetchEvents(ctx, s.tokens.Source(unitID, p), window)
	s.recordCall(p, "fetch_events", started, err)
	if err != nil {
		s.metrics.RecordSyncRun(string(p), false, time.Since(started))
		s.audit.Record(AuditEntry{
			UnitID:       unitID,
			Provider:     p,
			EventType:    models.EventSyncFailed,
			Severity:     models.SeverityError,
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	result := &SyncResult{Fetched: len(events)}
	for i := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event := &events[i]
		action := classify(event, started)
		written, err := s.appendLog(unitID, event, action)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{
				EventID: event.ExternalID,
				Message: err.Error(),
			})
			s.metrics.RecordDatabaseQueryError("append_sync_log")
			continue
		}
		if !written {
			result.Skipped++
			continue
		}
		switch action {
		case models.SyncActionCreated:
			result.Created++
		case models.SyncActionUpdated:
			result.Updated++
		case models.SyncActionCancelled:
			result.Cancelled++
		}
	}

	s.metrics.RecordSyncRun(string(p), true, time.Since(started))
	s.metrics.RecordSyncActions(string(p), result.Created, result.Updated, result.Cancelled, result.Skipped)
	s.audit.Record(AuditEntry{
		UnitID:    unitID,
		Provider:  p,
		EventType: models.EventSyncCompleted,
		Severity:  models.SeverityInfo,
		Detail: models.JSONMap{
			"fetched":   result.Fetched,
			"created":   result.Created,
			"updated":   result.Updated,
			"cancelled": result.Cancelled,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
		},
		Success: result.Failed == 0,
	})
	return result, nil
}

// classify maps an event snapshot to a sync action. Cancellation wins;
// a recent upstream creation counts as created; everything else is an
// update.
func classify(event *models.CalendarEvent, now time.Time) string {
	switch {
	case event.Status == models.EventStatusCancelled:
		return models.SyncActionCancelled
	case !event.CreatedAt.IsZero() && now.Sub(event.CreatedAt) <= createdRecency:
		return models.SyncActionCreated
	default:
		return models.SyncActionUpdated
	}
}

// recordCall reports one outbound provider operation to the metrics
// recorder, classifying the outcome by error kind.
func (s *SyncService) recordCall(p models.Provider, operation string, started time.Time, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, provider.ErrAuthFailed):
		outcome = "auth_failed"
	case errors.Is(err, provider.ErrNetwork):
		outcome = "network_error"
	default:
		outcome = "api_error"
	}
	s.metrics.RecordProviderCall(string(p), operation, outcome, time.Since(started))
}

// appendLog writes one sync-log row keyed by the event's upstream
// last-modified time, which is what makes replays idempotent. When a
// provider omits that timestamp the fallbacks stay deterministic per
// event snapshot so replays still dedupe.
func (s *SyncService) appendLog(unitID string, event *models.CalendarEvent, action string) (bool, error) {
	timestamp := event.UpdatedAt
	if timestamp.IsZero() {
		timestamp = event.CreatedAt
	}
	if timestamp.IsZero() {
		timestamp = event.Start
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return s.appendEntry(&models.SyncLog{
		UnitID:    unitID,
		EventID:   event.ExternalID,
		Action:    action,
		UserEmail: event.OrganizerEmail,
		EventData: event.Snapshot(),
		Timestamp: timestamp,
	})
}

// ListEvents fetches the provider calendar inside [from, to) without
// touching the sync log.
func (s *SyncService) ListEvents(
	ctx context.Context,
	unitID string,
	p models.Provider,
	from, to time.Time,
) ([]models.CalendarEvent, error) {
	adapter, ok := s.adapters[p]
	if !ok {
		return nil, ErrSyncUnsupported
	}
	if !to.After(from) {
		return nil, fmt.Errorf("window end must be after start")
	}

	started := time.Now()
	events, err := adapter.FetchEvents(ctx, s.tokens.Source(unitID, p), provider.TimeWindow{Start: from, End: to})
	s.recordCall(p, "fetch_events", started, err)
	return events, err
}

// CreateEvent writes a new event to the provider calendar and records
// it in the sync log.
func (s *SyncService) CreateEvent(
	ctx context.Context,
	unitID string,
	p models.Provider,
	event *models.CalendarEvent,
) (*models.CalendarEvent, error) {
	adapter, ok := s.adapters[p]
	if !ok {
		return nil, ErrSyncUnsupported
	}
	if event.Title == "" || event.Start.IsZero() || event.End.IsZero() {
		return nil, fmt.Errorf("event requires title, start and end")
	}
	if !event.End.After(event.Start) {
		return nil, fmt.Errorf("event end must be after start")
	}

	started := time.Now()
	created, err := adapter.CreateEvent(ctx, s.tokens.Source(unitID, p), event)
	s.recordCall(p, "create_event", started, err)
	if err != nil {
		return nil, err
	}

	if _, err := s.appendLog(unitID, created, models.SyncActionCreated); err != nil {
		s.metrics.RecordDatabaseQueryError("append_sync_log")
	}
	return created, nil
}

// UpdateEvent applies a partial change to a provider event and records
// it in the sync log.
func (s *SyncService) UpdateEvent(
	ctx context.Context,
	unitID string,
	p models.Provider,
	externalID string,
	change *models.EventChange,
) error {
	adapter, ok := s.adapters[p]
	if !ok {
		return ErrSyncUnsupported
	}

	started := time.Now()
	err := adapter.UpdateEvent(ctx, s.tokens.Source(unitID, p), externalID, change)
	s.recordCall(p, "update_event", started, err)
	if err != nil {
		return err
	}

	entry := &models.SyncLog{
		UnitID:    unitID,
		EventID:   externalID,
		Action:    models.SyncActionUpdated,
		Timestamp: time.Now().UTC(),
	}
	if _, err := s.store.AppendSyncLog(entry); err != nil {
		s.metrics.RecordDatabaseQueryError("append_sync_log")
	}
	return nil
}

// CancelEvent removes a provider event, refusing cancellations inside
// the cutoff window before the event starts.
func (s *SyncService) CancelEvent(ctx context.Context, unitID string, p models.Provider, externalID string) error {
	adapter, ok := s.adapters[p]
	if !ok {
		return ErrSyncUnsupported
	}

	if start, ok := s.knownEventStart(unitID, externalID); ok {
		until := time.Until(start)
		if until > 0 && until < cancelCutoff {
			return ErrPolicyViolation
		}
	}

	started := time.Now()
	err := adapter.CancelEvent(ctx, s.tokens.Source(unitID, p), externalID)
	s.recordCall(p, "cancel_event", started, err)
	if err != nil {
		return err
	}

	entry := &models.SyncLog{
		UnitID:    unitID,
		EventID:   externalID,
		Action:    models.SyncActionCancelled,
		Timestamp: time.Now().UTC(),
	}
	if _, err := s.store.AppendSyncLog(entry); err != nil {
		s.metrics.RecordDatabaseQueryError("append_sync_log")
	}
	return nil
}

// knownEventStart reads the event's last recorded start time from the
// sync log. Events never synced are not policy-checked.
func (s *SyncService) knownEventStart(unitID, externalID string) (time.Time, bool) {
	latest, err := s.store.LatestSyncLog(unitID, externalID)
	if err != nil || latest.EventData == nil {
		return time.Time{}, false
	}
	raw, ok := latest.EventData["start"].(string)
	if !ok {
		return time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

// AvailableSlots returns free intervals of at least slot length between
// the unit's active events inside [from, to).
func (s *SyncService) AvailableSlots(
	ctx context.Context,
	unitID string,
	p models.Provider,
	from, to time.Time,
	slot time.Duration,
) ([]models.TimeSlot, error) {
	adapter, ok := s.adapters[p]
	if !ok {
		return nil, ErrSyncUnsupported
	}
	if !to.After(from) {
		return nil, fmt.Errorf("availability window end must be after start")
	}
	if slot <= 0 {
		slot = 30 * time.Minute
	}

	started := time.Now()
	events, err := adapter.FetchEvents(ctx, s.tokens.Source(unitID, p), provider.TimeWindow{Start: from, End: to})
	s.recordCall(p, "fetch_events", started, err)
	if err != nil {
		return nil, err
	}

	busy := make([]models.TimeSlot, 0, len(events))
	for i := range events {
		if events[i].Status == models.EventStatusCancelled {
			continue
		}
		busy = append(busy, models.TimeSlot{Start: events[i].Start, End: events[i].End})
	}
	return freeSlots(from, to, busy, slot), nil
}

// freeSlots subtracts busy intervals from [from, to) and keeps gaps of
// at least slot length. Overlapping busy intervals are merged.
func freeSlots(from, to time.Time, busy []models.TimeSlot, slot time.Duration) []models.TimeSlot {
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	free := []models.TimeSlot{}
	cursor := from
	for _, interval := range busy {
		if interval.End.Before(cursor) || interval.Start.After(to) {
			continue
		}
		if interval.Start.Sub(cursor) >= slot {
			free = append(free, models.TimeSlot{Start: cursor, End: interval.Start})
		}
		if interval.End.After(cursor) {
			cursor = interval.End
		}
	}
	if to.Sub(cursor) >= slot {
		free = append(free, models.TimeSlot{Start: cursor, End: to})
	}
	return free
}

// History returns the unit's sync log, newest first.
func (s *SyncService) History(unitID string, params store.PaginationParams) ([]models.SyncLog, store.PaginationResult, error) {
	return s.store.ListSyncLogs(unitID, params)
}

// AppendEnrollmentRow exports one row to the unit's connected
// spreadsheet.
func (s *SyncService) AppendEnrollmentRow(
	ctx context.Context,
	unitID, spreadsheetID, sheetRange string,
	values []any,
) error {
	if s.sheets == nil {
		return ErrSyncUnsupported
	}
	if len(values) == 0 {
		return fmt.Errorf("row values must not be empty")
	}
	return s.sheets.AppendRow(ctx, s.tokens.Source(unitID, models.ProviderGoogleSheets), spreadsheetID, sheetRange, values)
}
