// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

package security

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// =============================================================================
// WINDOWS DPAPI KEY STORE
// =============================================================================

// windowsKeyStore wraps FileKeyStore with DPAPI: the master secret is
// encrypted under the current user's logon credentials before it touches
// disk, so filesystem permissions are not the only line of defense.
type windowsKeyStore struct {
	file *FileKeyStore
}

// NewKeyStore returns the Windows DPAPI-based key store.
func NewKeyStore() KeyStore {
	return &windowsKeyStore{file: NewFileKeyStore(defaultKeyStorePath())}
}

// Store encrypts the secret with DPAPI and writes it.
func (w *windowsKeyStore) Store(secret []byte) error {
	encrypted, err := dpapiProtect(secret)
	if err != nil {
		return fmt.Errorf("DPAPI encryption failed: %w", err)
	}
	return w.file.Store(encrypted)
}

// Retrieve reads the encrypted secret and decrypts it with DPAPI.
func (w *windowsKeyStore) Retrieve() ([]byte, error) {
	encrypted, err := w.file.Retrieve()
	if err != nil {
		return nil, err
	}
	secret, err := dpapiUnprotect(encrypted)
	if err != nil {
		return nil, fmt.Errorf("DPAPI decryption failed: %w", err)
	}
	return secret, nil
}

// Delete removes the encrypted secret.
func (w *windowsKeyStore) Delete() error { return w.file.Delete() }

// Exists reports whether the encrypted secret exists.
func (w *windowsKeyStore) Exists() bool { return w.file.Exists() }

// =============================================================================
// DPAPI CALLS
// =============================================================================

// dataBlob is the Windows DATA_BLOB structure.
type dataBlob struct {
	cbData uint32
	pbData *byte
}

var (
	crypt32                = windows.NewLazySystemDLL("crypt32.dll")
	procCryptProtectData   = crypt32.NewProc("CryptProtectData")
	procCryptUnprotectData = crypt32.NewProc("CryptUnprotectData")
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procLocalFree          = kernel32.NewProc("LocalFree")
)

// cryptprotectUIForbidden suppresses credential UI prompts.
const cryptprotectUIForbidden = 0x01

// dpapiProtect encrypts data bound to the current user's credentials.
func dpapiProtect(data []byte) ([]byte, error) {
	return dpapiCall(procCryptProtectData, data)
}

// dpapiUnprotect decrypts data encrypted by dpapiProtect.
func dpapiUnprotect(data []byte) ([]byte, error) {
	return dpapiCall(procCryptUnprotectData, data)
}

func dpapiCall(proc *windows.LazyProc, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	in := dataBlob{cbData: uint32(len(data)), pbData: &data[0]}
	var out dataBlob

	ret, _, err := proc.Call(
		uintptr(unsafe.Pointer(&in)),
		0, // description / received description
		0, // optional entropy
		0, // reserved
		0, // prompt struct
		cryptprotectUIForbidden,
		uintptr(unsafe.Pointer(&out)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("%s failed: %w", proc.Name, err)
	}

	result := make([]byte, out.cbData)
	copy(result, unsafe.Slice(out.pbData, out.cbData))
	procLocalFree.Call(uintptr(unsafe.Pointer(out.pbData)))

	return result, nil
}
