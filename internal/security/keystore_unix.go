// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// =============================================================================
// UNIX KEY STORE
// =============================================================================

// unixKeyStore wraps FileKeyStore with permission verification: the key
// file must be 0600 and its directory 0700, checked on every access so a
// loosened mode is caught before the secret is used.
type unixKeyStore struct {
	file *FileKeyStore
	path string
}

// NewKeyStore returns the Unix file-based key store.
func NewKeyStore() KeyStore {
	path := defaultKeyStorePath()
	return &unixKeyStore{file: NewFileKeyStore(path), path: path}
}

// Store writes the secret, then verifies nothing relaxed the mode.
func (u *unixKeyStore) Store(secret []byte) error {
	if err := u.file.Store(secret); err != nil {
		return err
	}
	if err := checkPerms(u.path, "key file"); err != nil {
		_ = os.Remove(u.path)
		return err
	}
	return nil
}

// Retrieve reads the secret after verifying permissions.
func (u *unixKeyStore) Retrieve() ([]byte, error) {
	if err := checkPerms(filepath.Dir(u.path), "key directory"); err != nil {
		return nil, err
	}
	if err := checkPerms(u.path, "key file"); err != nil {
		return nil, err
	}
	return u.file.Retrieve()
}

// Delete removes the secret.
func (u *unixKeyStore) Delete() error { return u.file.Delete() }

// Exists reports whether the key file exists.
func (u *unixKeyStore) Exists() bool { return u.file.Exists() }

// checkPerms rejects group- or world-accessible key material.
func checkPerms(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", what, err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%s has insecure permissions (%o): must be owner-only, fix with chmod", what, mode)
	}
	return nil
}
