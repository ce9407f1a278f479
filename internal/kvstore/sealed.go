package kvstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const keySize = 32

// Sealed is the secure store: every value is sealed with AES-256-GCM before
// it reaches the underlying store. The key lives in its own 0600 file.
type Sealed struct {
	inner Store
	gcm   cipher.AEAD
}

// NewSealed wraps inner with the key read from keyPath, creating a random
// key on first use.
func NewSealed(inner Store, keyPath string) (*Sealed, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return NewSealedWithKey(inner, key)
}

// NewSealedWithKey wraps inner with a raw 32-byte key.
func NewSealedWithKey(inner Store, key []byte) (*Sealed, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secure store key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealed{inner: inner, gcm: gcm}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid secure store key: %w", err)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate secure store key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Sealed) seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	// nonce || ciphertext || tag
	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(out), nil
}

func (s *Sealed) open(sealed string) (string, error) {
	buf, err := hex.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	n := s.gcm.NonceSize()
	if len(buf) < n {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := s.gcm.Open(nil, buf[:n], buf[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}

// Get implements Store.
func (s *Sealed) Get(key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	val, err := s.open(raw)
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements Store.
func (s *Sealed) Set(key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(key, sealed)
}

// Delete implements Store.
func (s *Sealed) Delete(key string) error {
	return s.inner.Delete(key)
}
