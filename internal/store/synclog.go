package store

import (
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

// Sync log operations

// AppendSyncLog inserts one sync-log row. The composite unique index on
// (unit_id, event_id, timestamp) absorbs replays: when a row with the
// same key already exists the insert is a no-op and written is false.
func (s *Store) AppendSyncLog(entry *models.SyncLog) (written bool, err error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "unit_id"},
			{Name: "event_id"},
			{Name: "timestamp"},
		},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListSyncLogs returns sync-log rows for a unit, newest first, with
// pagination. A zero page size falls back to the default.
func (s *Store) ListSyncLogs(unitID string, params PaginationParams) ([]models.SyncLog, PaginationResult, error) {
	query := s.db.Model(&models.SyncLog{}).Where("unit_id = ?", unitID)
	if params.Search != "" {
		query = query.Where("event_id = ?", params.Search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	pagination := CalculatePagination(total, params.Page, params.PageSize)

	var logs []models.SyncLog
	err := query.
		Order("timestamp DESC").
		Offset((pagination.CurrentPage - 1) * pagination.PageSize).
		Limit(pagination.PageSize).
		Find(&logs).
		Error
	if err != nil {
		return nil, PaginationResult{}, err
	}
	return logs, pagination, nil
}

// CountSyncLogs reports how many sync-log rows a unit has for an event.
func (s *Store) CountSyncLogs(unitID, eventID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.SyncLog{}).
		Where("unit_id = ? AND event_id = ?", unitID, eventID).
		Count(&count).
		Error
	return count, err
}

// LatestSyncLog returns the most recent row for an event, if any.
func (s *Store) LatestSyncLog(unitID, eventID string) (*models.SyncLog, error) {
	var entry models.SyncLog
	err := s.db.Where("unit_id = ? AND event_id = ?", unitID, eventID).
		Order("timestamp DESC").
		First(&entry).
		Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
