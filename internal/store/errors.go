package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrIntegrationNotFound is returned when no integration row exists
	// for a (unit, provider) pair.
	ErrIntegrationNotFound = errors.New("integration not found")
)
