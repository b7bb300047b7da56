package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

// Integration audit event operations

// CreateIntegrationEvents writes a batch of audit events in one insert.
func (s *Store) CreateIntegrationEvents(events []*models.IntegrationEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
	}
	return s.db.Create(events).Error
}

// ListIntegrationEvents returns recent audit events for a unit, newest
// first, limited to limit rows.
func (s *Store) ListIntegrationEvents(unitID string, limit int) ([]models.IntegrationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.IntegrationEvent
	err := s.db.Where("unit_id = ?", unitID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).
		Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CleanupIntegrationEvents deletes audit events older than the given
// retention window and returns how many rows were removed.
func (s *Store) CleanupIntegrationEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.Where("created_at < ?", cutoff).
		Delete(&models.IntegrationEvent{})
	return result.RowsAffected, result.Error
}
