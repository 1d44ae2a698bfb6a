// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// KEYSTORE INTERFACE
// =============================================================================

// KeyStore stores the keyring master secret.
// Implementations are platform-specific:
//   - Unix: file with 0600 permissions, verified on every access
//   - Windows: DPAPI-encrypted file
type KeyStore interface {
	// Store securely stores the master secret.
	Store(secret []byte) error
	// Retrieve reads the master secret back.
	Retrieve() ([]byte, error)
	// Delete removes the stored secret.
	Delete() error
	// Exists reports whether a secret is stored.
	Exists() bool
}

// =============================================================================
// FILE KEY STORE
// =============================================================================

// FileKeyStore keeps the master secret in a plain 0600 file.
// It is the portable building block; the Unix store wraps it with
// permission verification, and tests use it directly.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore returns a key store rooted at an explicit path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Store writes the secret with restricted permissions.
// RELIABILITY: atomic write, so a crash never leaves a truncated secret.
func (f *FileKeyStore) Store(secret []byte) error {
	if err := util.AtomicWriteFilePrivate(f.path, secret, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Retrieve reads the secret from the file.
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	secret, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return secret, nil
}

// Delete overwrites the secret with zeros, then removes the file.
func (f *FileKeyStore) Delete() error {
	info, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}

	if size := info.Size(); size > 0 {
		zeros := make([]byte, size)
		if fh, err := os.OpenFile(f.path, os.O_WRONLY, 0600); err == nil {
			_, _ = fh.Write(zeros)
			_ = fh.Sync()
			_ = fh.Close()
		}
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists reports whether the key file exists.
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// defaultKeyStorePath returns the master secret location.
func defaultKeyStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".forgechat", "keyring.key")
	}
	return filepath.Join(home, ".forgechat", "keyring.key")
}
