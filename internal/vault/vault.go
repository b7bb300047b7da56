// Package vault provides authenticated encryption for OAuth tokens at
// rest. Ciphertext embeds issuance and expiry claims so stale blobs are
// rejected on decryption. Error paths never carry plaintext or key
// material.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrEncrypt indicates encryption failed or its input was invalid.
	ErrEncrypt = errors.New("vault: encryption failed")

	// ErrDecrypt indicates the ciphertext is tampered, malformed, or expired.
	ErrDecrypt = errors.New("vault: decryption failed")

	// ErrKeyMissing indicates the vault was constructed without a usable key.
	ErrKeyMissing = errors.New("vault: encryption key missing or too short")
)

const (
	// envelopeTTL is how long a sealed token remains readable.
	envelopeTTL = 365 * 24 * time.Hour

	// minKeyLength matches the config-level validation; the vault
	// re-checks so it cannot be constructed around a weak key.
	minKeyLength = 16

	keyIterations = 10000
	keyLength     = 32 // AES-256
)

// keySalt is a fixed derivation salt; key secrecy comes entirely from
// the configured secret.
var keySalt = []byte("crm-integration-vault-v1")

// envelope is the JSON payload sealed inside each ciphertext.
type envelope struct {
	Token    string `json:"token"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// Vault performs AES-256-GCM encryption of credential strings with a
// process-wide key derived from configuration.
type Vault struct {
	aead cipher.AEAD
	now  func() time.Time
}

// New derives the AES key from secret via PBKDF2 and returns a ready
// vault. It fails rather than falling back to any default key.
func New(secret string) (*Vault, error) {
	if len(secret) < minKeyLength {
		return nil, ErrKeyMissing
	}

	key := pbkdf2.Key([]byte(secret), keySalt, keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: cipher init", ErrEncrypt)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm init", ErrEncrypt)
	}

	return &Vault{aead: aead, now: time.Now}, nil
}

// Encrypt seals plaintext into a base64url ciphertext with issuance and
// expiry claims. Empty plaintext is rejected.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty plaintext", ErrEncrypt)
	}

	issued := v.now()
	payload, err := json.Marshal(envelope{
		Token:    plaintext,
		IssuedAt: issued.Unix(),
		Expiry:   issued.Add(envelopeTTL).Unix(),
	})
	if err != nil {
		return "", ErrEncrypt
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrEncrypt
	}

	sealed := v.aead.Seal(nonce, nonce, payload, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt, verifying integrity
// and the embedded expiry claim.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", ErrDecrypt)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) <= nonceSize {
		return "", fmt.Errorf("%w: truncated input", ErrDecrypt)
	}

	payload, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: integrity check", ErrDecrypt)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("%w: malformed payload", ErrDecrypt)
	}
	if env.Token == "" {
		return "", fmt.Errorf("%w: empty payload", ErrDecrypt)
	}
	if v.now().Unix() > env.Expiry {
		return "", fmt.Errorf("%w: envelope expired", ErrDecrypt)
	}

	return env.Token, nil
}
