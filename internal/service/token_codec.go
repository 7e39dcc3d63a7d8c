package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

// TokenCodec encrypts and decrypts hand-off token payloads with the shared
// secret distributed to relay-point terminals. AES-GCM gives both secrecy
// and tamper evidence: any bit flip in the opaque string fails
// authentication on decode instead of yielding a wrong payload.
type TokenCodec struct {
	aead cipher.AEAD
}

// NewTokenCodec derives a 256-bit key from the configured secret and builds
// the codec. The secret comes from process configuration, never from source.
func NewTokenCodec(sharedSecret string) (*TokenCodec, error) {
	if sharedSecret == "" {
		return nil, fmt.Errorf("handoff shared secret is empty")
	}
	key := sha256.Sum256([]byte(sharedSecret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init token aead: %w", err)
	}
	return &TokenCodec{aead: aead}, nil
}

// Encode serializes the payload and encrypts it into an opaque base64url
// string safe to embed in a QR symbol.
func (c *TokenCodec) Encode(payload models.TokenPayload) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate token nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode decrypts and deserializes an opaque token string. Corrupted input,
// a wrong secret, or non-token garbage all surface as ErrMalformedToken.
func (c *TokenCodec) Decode(opaque string) (*models.TokenPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return nil, appErrors.ErrMalformedToken
	}
	if len(raw) <= c.aead.NonceSize() {
		return nil, appErrors.ErrMalformedToken
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, appErrors.ErrMalformedToken
	}
	var payload models.TokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, appErrors.ErrMalformedToken
	}
	if payload.RepairID == "" || payload.RelayPointID == "" || payload.Code == "" {
		return nil, appErrors.ErrMalformedToken
	}
	return &payload, nil
}
