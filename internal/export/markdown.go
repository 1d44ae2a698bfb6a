// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/artifact"
	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a conversation as a human-readable Markdown
// document: YAML frontmatter, role-labelled message sections, and the
// conversation's artifacts as fenced code blocks.
type MarkdownExporter struct{}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the markdown MIME type.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// Export renders the conversation as Markdown. Assistant bodies have their
// raw artifact tag blocks collapsed to placeholders; the artifact contents
// follow in their own section.
func (e *MarkdownExporter) Export(conv *model.Conversation, artifacts []*model.Artifact) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	title := conv.Title
	if title == "" {
		title = "Untitled conversation"
	}

	var md strings.Builder

	// YAML frontmatter.
	md.WriteString("---\n")
	md.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(title)))
	md.WriteString(fmt.Sprintf("created: %s\n", formatTimestamp(conv.CreatedAt)))
	md.WriteString(fmt.Sprintf("updated: %s\n", formatTimestamp(conv.UpdatedAt)))
	md.WriteString(fmt.Sprintf("messages: %d\n", len(conv.Messages)))
	md.WriteString(fmt.Sprintf("artifacts: %d\n", len(artifacts)))
	md.WriteString(fmt.Sprintf("exported: %s\n", formatTimestamp(time.Now())))
	md.WriteString("generator: forgechat\n")
	md.WriteString("---\n\n")

	md.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(title)))

	md.WriteString("## Conversation\n\n")
	for i, msg := range conv.Messages {
		if i > 0 {
			md.WriteString("---\n\n")
		}
		e.writeMessage(&md, msg)
	}

	if len(artifacts) > 0 {
		md.WriteString("## Artifacts\n\n")
		for _, art := range artifacts {
			e.writeArtifact(&md, art)
		}
	}

	md.WriteString(fmt.Sprintf("*Exported from forgechat on %s*\n", formatTimestamp(time.Now())))

	return []byte(md.String()), nil
}

// writeMessage renders one message as a role-labelled section.
func (e *MarkdownExporter) writeMessage(md *strings.Builder, msg *model.Message) {
	md.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n",
		formatRoleLabel(msg.Role), formatShortTimestamp(msg.CreatedAt)))

	if msg.Content.IsParts() {
		for _, part := range msg.Content.Parts {
			switch part.Kind {
			case model.PartText:
				e.writeBody(md, msg.Role, part.Text)
			case model.PartImage:
				md.WriteString(fmt.Sprintf("![attached image](%s)\n\n", part.DataURL))
			}
		}
		return
	}
	e.writeBody(md, msg.Role, msg.Content.Text)
}

// writeBody renders a text body. Assistant text is stripped of raw artifact
// tags first so prose reads cleanly.
func (e *MarkdownExporter) writeBody(md *strings.Builder, role model.Role, text string) {
	if role == model.RoleAssistant {
		text = artifact.Strip(text)
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	md.WriteString(text)
	md.WriteString("\n\n")
}

// writeArtifact renders one artifact as a titled fenced block.
func (e *MarkdownExporter) writeArtifact(md *strings.Builder, art *model.Artifact) {
	md.WriteString(fmt.Sprintf("### %s\n\n", escapeMarkdown(art.DisplayTitle())))
	md.WriteString(fmt.Sprintf("- **ID**: `%s`\n", art.ID))
	md.WriteString(fmt.Sprintf("- **Type**: %s\n", art.Type))
	if lang := art.Language(); lang != "" {
		md.WriteString(fmt.Sprintf("- **Language**: %s\n", lang))
	}
	if !art.IsComplete {
		md.WriteString("- **Partial**: stream ended before the closing tag\n")
	}
	md.WriteString("\n")

	fence := fenceFor(art.Content)
	md.WriteString(fence)
	md.WriteString(fenceLanguage(art))
	md.WriteString("\n")
	md.WriteString(art.Content)
	if !strings.HasSuffix(art.Content, "\n") {
		md.WriteString("\n")
	}
	md.WriteString(fence)
	md.WriteString("\n\n")
}

// =============================================================================
// HELPERS
// =============================================================================

// formatRoleLabel renders a role as a bracketed section label.
func formatRoleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	case model.RoleSystem:
		return "[System]"
	default:
		return "[" + string(role) + "]"
	}
}

// fenceLanguage returns the info string for an artifact's fenced block.
// The language metadata is model output, so anything outside a conservative
// character set is dropped rather than emitted into the document structure.
func fenceLanguage(art *model.Artifact) string {
	lang := art.Language()
	if lang == "" {
		switch art.Type {
		case model.ArtifactHTML:
			lang = "html"
		case model.ArtifactJSON:
			lang = "json"
		case model.ArtifactMarkdown:
			lang = "markdown"
		}
	}
	var b strings.Builder
	for _, r := range lang {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '+', r == '#', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeMarkdown escapes characters with structural meaning in headings and
// flattens newlines, which would otherwise break out of the heading line.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	replacer := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return replacer.Replace(s)
}

// escapeYAML renders a string safely as a YAML scalar. Titles come from
// model output, so newlines and indicator characters must not be able to
// inject frontmatter keys.
func escapeYAML(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`\n\\") ||
		strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
