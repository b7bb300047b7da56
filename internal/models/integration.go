package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Provider identifies an external OAuth2 service.
type Provider string

const (
	ProviderMS365          Provider = "ms365"
	ProviderGoogleCalendar Provider = "google_calendar"
	ProviderGoogleSheets   Provider = "google_sheets"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderMS365, ProviderGoogleCalendar, ProviderGoogleSheets:
		return true
	}
	return false
}

// ParseProvider converts a route/query string into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", errors.New("unknown provider: " + s)
	}
	return p, nil
}

// Integration status values. Transitions:
// disconnected --(OAuth success)--> connected
// connected --(unrecoverable refresh failure)--> error
// connected|error --(explicit disconnect)--> disconnected
const (
	StatusDisconnected = "disconnected"
	StatusConnected    = "connected"
	StatusError        = "error"
)

// Integration is one unit's connection to an external provider.
// Token columns hold vault ciphertext only; plaintext tokens exist
// transiently inside a single call stack and are never persisted or logged.
type Integration struct {
	ID                     string   `gorm:"primaryKey"`
	UnitID                 string   `gorm:"not null;uniqueIndex:idx_integration_unit_provider,priority:1"`
	Provider               Provider `gorm:"not null;uniqueIndex:idx_integration_unit_provider,priority:2"`
	AccessTokenCiphertext  string   `gorm:"type:text"`
	RefreshTokenCiphertext string   `gorm:"type:text"`
	TokenExpiresAt         time.Time
	Timezone               string `gorm:"not null;default:'UTC'"`
	Status                 string `gorm:"not null;default:'disconnected';index"`
	AccountEmail           string
	Metadata               JSONMap `gorm:"type:json"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TableName overrides the table name used by Integration to `integrations`
func (Integration) TableName() string {
	return "integrations"
}

// IsConnected returns true if the integration status is 'connected'
func (i *Integration) IsConnected() bool {
	return i.Status == StatusConnected
}

// TokenExpired reports whether the stored access token has expired,
// applying skew so a token about to expire is refreshed proactively.
func (i *Integration) TokenExpired(skew time.Duration) bool {
	return time.Now().Add(skew).After(i.TokenExpiresAt)
}

// JSONMap is a custom type for map[string]any stored as JSON in the database
type JSONMap map[string]any

// Scan implements sql.Scanner interface
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(JSONMap{})
	}
	return json.Marshal(m)
}
