package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"trade-journal/internal/store"
)

const (
	sealedPrefix     = "sealed:v1:"
	saltSize         = 16
	keySize          = 32
	pbkdf2Iterations = 100000
)

// TokenSealer encrypts values at rest before handing them to a KeyValueStore.
// With an empty passphrase it passes values through unchanged.
type TokenSealer struct {
	next       store.KeyValueStore
	passphrase string
	kdf        func(passphrase, salt []byte) []byte

	// Key of the last salt seen; the stored token changes once a day at most.
	mu         sync.Mutex
	cachedSalt []byte
	cachedKey  []byte
}

// NewTokenSealer wraps next with AES-GCM sealing keyed by passphrase.
func NewTokenSealer(next store.KeyValueStore, passphrase string) *TokenSealer {
	return &TokenSealer{next: next, passphrase: passphrase, kdf: pbkdf2SHA256}
}

func pbkdf2SHA256(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
}

// Get returns the opened value for key, or "" when missing.
func (s *TokenSealer) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil || raw == "" {
		return raw, err
	}
	if !strings.HasPrefix(raw, sealedPrefix) {
		return raw, nil
	}
	if s.passphrase == "" {
		return "", fmt.Errorf("value for %s is sealed but no passphrase is configured", key)
	}
	return s.open(strings.TrimPrefix(raw, sealedPrefix))
}

// Set seals value and stores it under key.
func (s *TokenSealer) Set(ctx context.Context, key, value string) error {
	if s.passphrase == "" || value == "" {
		return s.next.Set(ctx, key, value)
	}
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.next.Set(ctx, key, sealedPrefix+sealed)
}

// Delete removes key.
func (s *TokenSealer) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

func (s *TokenSealer) deriveKey(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedKey != nil && bytes.Equal(s.cachedSalt, salt) {
		return s.cachedKey
	}
	key := s.kdf([]byte(s.passphrase), salt)
	s.cachedSalt = append([]byte(nil), salt...)
	s.cachedKey = key
	return key
}

// seal returns base64(salt | nonce | ciphertext).
func (s *TokenSealer) seal(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := newGCM(s.deriveKey(salt))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *TokenSealer) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}
	if len(data) < saltSize {
		return "", fmt.Errorf("sealed value too short")
	}

	gcm, err := newGCM(s.deriveKey(data[:saltSize]))
	if err != nil {
		return "", err
	}

	rest := data[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed value: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
