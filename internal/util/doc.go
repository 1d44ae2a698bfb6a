// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the forgechat application.
//
// This package contains common helpers used throughout the application
// for string truncation, identifier generation, and file operations.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with an inner ellipsis
//   - EllipsizeRunes: slice-then-append ellipsis used for titles
//
// Identifiers:
//   - NewID: prefixed 128-bit random identifiers
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
