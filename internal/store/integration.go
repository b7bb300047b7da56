package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

// Integration operations

// GetIntegration loads the integration row for a (unit, provider) pair.
func (s *Store) GetIntegration(unitID string, provider models.Provider) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.Where("unit_id = ? AND provider = ?", unitID, provider).
		First(&integration).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, err
	}
	return &integration, nil
}

// UpsertIntegration creates the integration row for (unit, provider) or
// updates the existing one in place. The row keeps its original ID so
// sync logs and audit events stay attached across reconnects.
func (s *Store) UpsertIntegration(integration *models.Integration) error {
	var existing models.Integration
	err := s.db.Where("unit_id = ? AND provider = ?", integration.UnitID, integration.Provider).
		First(&existing).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if integration.ID == "" {
			integration.ID = uuid.New().String()
		}
		return s.db.Create(integration).Error
	}
	if err != nil {
		return err
	}

	integration.ID = existing.ID
	integration.CreatedAt = existing.CreatedAt
	return s.db.Save(integration).Error
}

// UpdateIntegrationTokens persists freshly refreshed token ciphertext
// without touching any other integration field.
func (s *Store) UpdateIntegrationTokens(
	unitID string,
	provider models.Provider,
	accessCiphertext, refreshCiphertext string,
	expiresAt time.Time,
) error {
	updates := map[string]any{
		"access_token_ciphertext": accessCiphertext,
		"token_expires_at":        expiresAt,
		"status":                  models.StatusConnected,
	}
	// An empty refresh ciphertext means the provider omitted the grant;
	// the stored one stays valid and must not be clobbered.
	if refreshCiphertext != "" {
		updates["refresh_token_ciphertext"] = refreshCiphertext
	}

	result := s.db.Model(&models.Integration{}).
		Where("unit_id = ? AND provider = ?", unitID, provider).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// UpdateIntegrationStatus moves an integration to the given status.
func (s *Store) UpdateIntegrationStatus(unitID string, provider models.Provider, status string) error {
	result := s.db.Model(&models.Integration{}).
		Where("unit_id = ? AND provider = ?", unitID, provider).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// ClearIntegrationTokens wipes stored ciphertext and marks the row
// disconnected. Used by disconnect; the row itself is retained.
func (s *Store) ClearIntegrationTokens(unitID string, provider models.Provider) error {
	result := s.db.Model(&models.Integration{}).
		Where("unit_id = ? AND provider = ?", unitID, provider).
		Updates(map[string]any{
			"access_token_ciphertext":  "",
			"refresh_token_ciphertext": "",
			"token_expires_at":         time.Time{},
			"status":                   models.StatusDisconnected,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// ListIntegrations returns every integration row for a unit.
func (s *Store) ListIntegrations(unitID string) ([]models.Integration, error) {
	var integrations []models.Integration
	err := s.db.Where("unit_id = ?", unitID).
		Order("provider ASC").
		Find(&integrations).
		Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

// CountConnectedIntegrations returns the number of connected
// integrations per provider, for the metrics gauge job.
func (s *Store) CountConnectedIntegrations() (map[models.Provider]int64, error) {
	var rows []struct {
		Provider models.Provider
		Count    int64
	}
	err := s.db.Model(&models.Integration{}).
		Select("provider, COUNT(*) as count").
		Where("status = ?", models.StatusConnected).
		Group("provider").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.Provider]int64, len(rows))
	for _, row := range rows {
		counts[row.Provider] = row.Count
	}
	return counts, nil
}

// DeleteIntegration removes the integration row entirely.
func (s *Store) DeleteIntegration(unitID string, provider models.Provider) error {
	result := s.db.Where("unit_id = ? AND provider = ?", unitID, provider).
		Delete(&models.Integration{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}
