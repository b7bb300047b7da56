// Package auth implements the OAuth2 surface of the integration layer:
// per-provider authorization configs and the signed state parameter that
// binds a callback to the unit that initiated it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

var (
	// ErrStateGeneration is returned when signing the state parameter fails
	ErrStateGeneration = errors.New("failed to generate state parameter")

	// ErrInvalidState is returned when a callback state fails verification
	ErrInvalidState = errors.New("invalid state parameter")

	// ErrExpiredState is returned when a callback arrives after the state TTL
	ErrExpiredState = errors.New("state parameter expired")
)

// stateTTL bounds how long an authorization redirect may stay pending.
const stateTTL = 5 * time.Minute

// StatePayload is the verified content of a callback state parameter.
type StatePayload struct {
	UnitID   string
	Provider models.Provider
}

// StateSigner issues and verifies HS256-signed state parameters.
type StateSigner struct {
	secret []byte
}

// NewStateSigner creates a state signer keyed by the given secret.
func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret)}
}

// Sign produces a state parameter carrying the initiating unit and
// provider, expiring after the state TTL.
func (s *StateSigner) Sign(unitID string, provider models.Provider) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"unit_id":  unitID,
		"provider": string(provider),
		"iat":      now.Unix(),
		"exp":      now.Add(stateTTL).Unix(),
		"jti":      uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateGeneration, err)
	}
	return signed, nil
}

// Verify checks a callback state parameter and returns its payload.
// Expired states map to ErrExpiredState; any other defect, tampering
// included, maps to ErrInvalidState.
func (s *StateSigner) Verify(state string) (*StatePayload, error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredState
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidState
	}

	unitID, _ := claims["unit_id"].(string)
	providerName, _ := claims["provider"].(string)
	if unitID == "" {
		return nil, ErrInvalidState
	}
	provider, err := models.ParseProvider(providerName)
	if err != nil {
		return nil, ErrInvalidState
	}

	return &StatePayload{UnitID: unitID, Provider: provider}, nil
}
