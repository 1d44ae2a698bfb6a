// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security encrypts provider API keys at rest.
//
// Keys are sealed with AES-256-GCM under a key derived from a random
// master secret (PBKDF2-SHA-256, 600k iterations). The master secret
// lives in a platform keystore: a 0600 file on Unix, DPAPI on Windows.
// Sealed values carry the "ENC:" prefix; unprefixed values pass through
// untouched so plaintext configs keep working.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// EncryptedPrefix marks sealed values.
	// Format: ENC:base64(nonce || ciphertext || tag)
	EncryptedPrefix = "ENC:"

	// NonceSize is the GCM nonce size in bytes.
	NonceSize = 12

	// KeySize is the AES-256 key size in bytes.
	KeySize = 32

	// SaltSize is the PBKDF2 salt size in bytes.
	SaltSize = 32

	// PBKDF2Iterations per OWASP 2023 recommendations for SHA-256.
	PBKDF2Iterations = 600000
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotInitialized indicates the keyring has no sealing key.
	ErrNotInitialized = errors.New("keyring not initialized")

	// ErrInvalidCiphertext indicates malformed encrypted data.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates decryption failure (wrong key or tampered data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrKeyStoreFailed indicates a key storage operation failed.
	ErrKeyStoreFailed = errors.New("key store operation failed")
)

// ZeroBytes securely wipes a byte slice.
// SECURITY: prevents key material from lingering in memory.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// KEYRING
// =============================================================================

// Keyring seals and opens API key strings.
// Safe for concurrent use.
type Keyring struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

// Open loads the master secret from the default platform keystore,
// creating one on first use, and derives the sealing key.
func Open() (*Keyring, error) {
	return OpenWithStore(NewKeyStore())
}

// OpenWithStore is Open with an explicit keystore.
func OpenWithStore(ks KeyStore) (*Keyring, error) {
	blob, err := loadOrCreateSecret(ks)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(blob)

	salt := blob[:SaltSize]
	secret := blob[SaltSize:]

	key := DeriveKey(secret, salt)
	defer ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return &Keyring{aead: aead}, nil
}

// loadOrCreateSecret returns the salt||secret blob from the keystore,
// generating and storing a fresh one on first use.
func loadOrCreateSecret(ks KeyStore) ([]byte, error) {
	if ks.Exists() {
		blob, err := ks.Retrieve()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
		}
		if len(blob) != SaltSize+KeySize {
			ZeroBytes(blob)
			return nil, fmt.Errorf("%w: master secret has wrong length", ErrKeyStoreFailed)
		}
		return blob, nil
	}

	blob := make([]byte, SaltSize+KeySize)
	if _, err := io.ReadFull(rand.Reader, blob); err != nil {
		return nil, fmt.Errorf("failed to generate master secret: %w", err)
	}
	if err := ks.Store(blob); err != nil {
		ZeroBytes(blob)
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
	}
	return blob, nil
}

// DeriveKey stretches a master secret into an AES-256 key.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, PBKDF2Iterations, KeySize, sha256.New)
}

// =============================================================================
// SEAL / OPEN
// =============================================================================

// Encrypt seals a plaintext value and returns it with the ENC: prefix.
func (k *Keyring) Encrypt(plaintext string) (string, error) {
	if k == nil {
		return "", ErrNotInitialized
	}
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.aead == nil {
		return "", ErrNotInitialized
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag to the nonce: the stored form is
	// self-contained.
	sealed := k.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value. Values without the ENC: prefix are
// returned unchanged.
func (k *Keyring) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if k == nil {
		return "", ErrNotInitialized
	}
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.aead == nil {
		return "", ErrNotInitialized
	}

	encoded := strings.TrimPrefix(value, EncryptedPrefix)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidCiphertext, err)
	}
	if len(data) < NonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a value carries the ENC: prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}
