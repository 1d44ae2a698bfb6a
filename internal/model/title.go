// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

import (
	"regexp"
	"strings"

	"github.com/jeranaias/forgechat/internal/util"
)

// DefaultTitle is the title a fresh conversation starts with.
const DefaultTitle = "New chat"

// titleMaxRunes is the slice length before the ellipsis is appended.
const titleMaxRunes = 30

// numberedDefaultTitle matches titles like "New Chat 3" that some surfaces
// assign when several chats are created in a row.
var numberedDefaultTitle = regexp.MustCompile(`^New Chat \d+$`)

// IsDefaultTitle reports whether a title is still a placeholder that the
// first user message should replace.
func IsDefaultTitle(title string) bool {
	return title == DefaultTitle || numberedDefaultTitle.MatchString(title)
}

// GenerateTitle derives a conversation title from the first user message
// text: the text sliced to 30 runes with "..." appended when anything was
// cut. Empty or all-whitespace text keeps the default title.
func GenerateTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return DefaultTitle
	}
	return util.EllipsizeRunes(trimmed, titleMaxRunes)
}
