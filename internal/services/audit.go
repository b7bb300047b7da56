package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
)

// batchFlushSize forces a write once this many events are buffered.
const batchFlushSize = 100

// AuditEntry represents the data needed to record one integration event
type AuditEntry struct {
	UnitID       string
	Provider     models.Provider
	EventType    models.EventType
	Severity     models.EventSeverity
	Detail       models.JSONMap
	Success      bool
	ErrorMessage string
}

// AuditService records the integration audit trail asynchronously.
// Entries are buffered and written in batches so audit writes never sit
// on a request path.
type AuditService struct {
	store      *store.Store
	enabled    bool
	bufferSize int

	eventChan chan *models.IntegrationEvent

	batchBuffer []*models.IntegrationEvent
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// NewAuditService creates the audit service and starts its worker when
// enabled.
func NewAuditService(s *store.Store, enabled bool, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	service := &AuditService{
		store:       s,
		enabled:     enabled,
		bufferSize:  bufferSize,
		eventChan:   make(chan *models.IntegrationEvent, bufferSize),
		batchBuffer: make([]*models.IntegrationEvent, 0, batchFlushSize),
		batchTicker: time.NewTicker(1 * time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Printf("Integration audit started with buffer size %d", bufferSize)
	} else {
		log.Println("Integration audit is disabled")
	}

	return service
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.eventChan:
			s.addToBatch(event)

		case <-s.batchTicker.C:
			s.flushBatch()

		case <-s.shutdownCh:
			s.drain()
			s.flushBatch()
			return
		}
	}
}

// drain empties whatever is still queued at shutdown.
func (s *AuditService) drain() {
	for {
		select {
		case event := <-s.eventChan:
			s.addToBatch(event)
		default:
			return
		}
	}
}

func (s *AuditService) addToBatch(event *models.IntegrationEvent) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, event)
	if len(s.batchBuffer) >= batchFlushSize {
		s.flushBatchUnsafe()
	}
}

func (s *AuditService) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

// flushBatchUnsafe writes the buffer; caller must hold batchMutex.
func (s *AuditService) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	toWrite := make([]*models.IntegrationEvent, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)
	s.batchBuffer = s.batchBuffer[:0]

	if err := s.store.CreateIntegrationEvents(toWrite); err != nil {
		log.Printf("Failed to write integration event batch: %v", err)
	}
}

// Record queues one audit event. When the buffer is full the event is
// dropped rather than blocking the caller.
func (s *AuditService) Record(entry AuditEntry) {
	if !s.enabled {
		return
	}

	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	event := &models.IntegrationEvent{
		ID:           uuid.New().String(),
		UnitID:       entry.UnitID,
		Provider:     entry.Provider,
		EventType:    entry.EventType,
		Severity:     entry.Severity,
		Detail:       entry.Detail,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    time.Now(),
	}

	select {
	case s.eventChan <- event:
	default:
		log.Printf("Integration audit buffer full, dropping event %s", entry.EventType)
	}
}

// Flush forces pending events to disk. Test hook and shutdown helper.
func (s *AuditService) Flush() {
	s.drain()
	s.flushBatch()
}

// Cleanup removes events older than the retention window.
func (s *AuditService) Cleanup(retention time.Duration) (int64, error) {
	return s.store.CleanupIntegrationEvents(retention)
}

// Shutdown stops the worker after flushing buffered events.
func (s *AuditService) Shutdown() {
	if !s.enabled {
		return
	}
	close(s.shutdownCh)
	s.wg.Wait()
	s.batchTicker.Stop()
}
