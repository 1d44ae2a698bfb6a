// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format identifies an export output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a user-facing format name onto a Format. It accepts the
// aliases the CLI documents: md, markdown, json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want md or json)", s)
	}
}

// New returns the exporter for the given format.
func New(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownExporter(), nil
	case FormatJSON:
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// =============================================================================
// EXPORTER INTERFACE
// =============================================================================

// Exporter renders a conversation and its artifacts to a byte payload.
type Exporter interface {
	// Export renders the conversation. Artifacts may be nil when the
	// conversation produced none; callers pass them in index order.
	Export(conv *model.Conversation, artifacts []*model.Artifact) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the produced payload.
	MimeType() string
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ExportToPath renders the conversation and writes it to path. The write is
// atomic: an interrupted export never leaves a truncated file behind.
func ExportToPath(exp Exporter, conv *model.Conversation, artifacts []*model.Artifact, path string) error {
	data, err := exp.Export(conv, artifacts)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// ExportToDir renders the conversation into dir under a generated filename
// and returns the full path written.
func ExportToDir(exp Exporter, conv *model.Conversation, artifacts []*model.Artifact, dir string) (string, error) {
	path := filepath.Join(dir, DefaultFilename(conv, exp.FileExtension()))
	if err := ExportToPath(exp, conv, artifacts, path); err != nil {
		return "", err
	}
	return path, nil
}

// DefaultFilename builds a filesystem-safe name for an exported
// conversation: conversation_<title>_<timestamp><ext>.
func DefaultFilename(conv *model.Conversation, ext string) string {
	title := sanitizeFilename(conv.Title)
	stamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("conversation_%s_%s%s", title, stamp, ext)
}

// sanitizeFilename makes a conversation title safe for use in a filename.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", " ", "_",
	)
	name = replacer.Replace(name)

	var b strings.Builder
	for _, r := range name {
		if r < 32 || r == 127 {
			b.WriteRune('-')
			continue
		}
		b.WriteRune(r)
	}
	name = b.String()

	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	name = strings.Trim(name, "._-")
	if name == "" {
		return "untitled"
	}
	return name
}

// =============================================================================
// SHARED FORMATTING
// =============================================================================

// formatTimestamp renders a full date and time.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp renders just the time of day.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// fenceFor returns a backtick fence longer than any backtick run inside
// content, so artifacts that themselves contain fenced blocks stay intact.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	n := longest + 1
	if n < 3 {
		n = 3
	}
	return strings.Repeat("`", n)
}
