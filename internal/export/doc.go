// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations to shareable documents.
//
// Two formats are supported:
//
//   - Markdown: human-readable, with role-labelled sections and the
//     conversation's artifacts as fenced code blocks
//   - JSON: the persisted schema, complete enough to re-import
//
// # Usage
//
// Export a conversation to a generated filename:
//
//	exp, _ := export.New(export.FormatMarkdown)
//	path, err := export.ExportToDir(exp, conv, artifacts, ".")
//
// Export to a specific file:
//
//	err := export.ExportToPath(exp, conv, artifacts, "chat.md")
package export
