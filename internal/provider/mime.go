// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the supported LLM provider families, their
// endpoint and header conventions, and the message normaliser that
// translates the unified message shape into each provider's wire schema.
package provider

import (
	"path/filepath"
	"strings"
)

// contentTypes maps lower-cased filename extensions to the Content-Type the
// download path serves. The table is fixed: provider-hosted files are the
// output of code execution, not arbitrary uploads.
var contentTypes = map[string]string{
	// Images
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",

	// Office documents
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",

	// Plain text
	"txt": "text/plain",
	"csv": "text/csv",

	// Structured text
	"json": "application/json",
	"xml":  "application/xml",
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",

	// Binary
	"pdf": "application/pdf",
	"zip": "application/zip",
}

// ContentTypeForFilename infers the download Content-Type from a filename's
// extension, case-insensitively. Unknown extensions download as raw bytes.
func ContentTypeForFilename(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// FallbackFilename names a download when the metadata fetch fails.
func FallbackFilename(fileID string) string {
	return "file_" + fileID
}
