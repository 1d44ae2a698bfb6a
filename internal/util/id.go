// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the forgechat application.
package util

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a collision-resistant opaque identifier: prefix, an
// underscore, and 128 random bits rendered as lowercase hex.
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])
}
