// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/forgechat/internal/artifact"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/ui/styles"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript rebuilds the viewport content from the store. The view
// sticks to the bottom while the reader was already there or a reply is
// streaming, and holds position otherwise.
func (m *Model) refreshTranscript() {
	if !m.ready || m.opts.Store == nil {
		return
	}

	conv, ok := m.opts.Store.Conversation(m.convID)
	if !ok || conv.IsEmpty() {
		m.convTitle = ""
		m.viewport.SetContent(m.emptyState())
		m.viewport.GotoTop()
		return
	}
	m.convTitle = conv.Title

	wasAtBottom := m.viewport.AtBottom()

	parts := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if r := m.renderMessage(msg); r != "" {
			parts = append(parts, r)
		}
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))

	if wasAtBottom || m.state == StateStreaming {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessage(msg *model.Message) string {
	switch msg.Role {
	case model.RoleUser:
		return m.renderUserMessage(msg)
	case model.RoleAssistant:
		return m.renderAssistantMessage(msg)
	default:
		return m.renderSystemMessage(msg)
	}
}

func (m *Model) renderUserMessage(msg *model.Message) string {
	header := m.theme.UserLabel.Render("You") + " " + m.renderTimestamp(msg)

	body := m.theme.MessageBody.Width(m.wrapWidth()).Render(msg.Content.PlainText())
	if n := len(msg.Content.ImageParts()); n > 0 {
		note := "[1 image attached]"
		if n > 1 {
			note = fmt.Sprintf("[%d images attached]", n)
		}
		body += "\n" + m.theme.Timestamp.Render(note)
	}
	return header + "\n" + body
}

func (m *Model) renderAssistantMessage(msg *model.Message) string {
	// Store selectors hand out clones with streamed text already
	// materialised, so in-flight state is tracked by identity.
	streaming := m.state == StateStreaming && msg.ID == m.streamMsgID

	text := msg.DisplayText()
	if strings.TrimSpace(text) == "" && !streaming {
		// An aborted exchange that produced nothing.
		return ""
	}

	header := m.theme.AssistantLabel.Render("Assistant") + " " + m.renderTimestamp(msg)

	stripped := artifact.Strip(text)
	var body string
	switch {
	case streaming:
		body = m.theme.MessageBody.Width(m.wrapWidth()).Render(stripped + " ▌")
	case m.markdownEnabled() && m.md != nil:
		body = m.renderMarkdownCached(msg.ID, stripped)
	default:
		body = m.theme.MessageBody.Width(m.wrapWidth()).Render(stripped)
	}
	return header + "\n" + body
}

func (m *Model) renderSystemMessage(msg *model.Message) string {
	header := m.theme.SystemLabel.Render("System") + " " + m.renderTimestamp(msg)
	body := m.theme.Timestamp.Width(m.wrapWidth()).Render(msg.Content.PlainText())
	return header + "\n" + body
}

func (m *Model) renderTimestamp(msg *model.Message) string {
	return m.theme.Timestamp.Render(msg.CreatedAt.Local().Format("15:04"))
}

// =============================================================================
// MARKDOWN
// =============================================================================

// renderMarkdownCached renders body through glamour, memoised per message.
// Only finalized messages reach here, so the text never changes under a key.
func (m *Model) renderMarkdownCached(id, body string) string {
	if out, ok := m.mdCache[id]; ok {
		return out
	}
	out, err := m.md.Render(body)
	if err != nil {
		return m.theme.MessageBody.Width(m.wrapWidth()).Render(body)
	}
	out = strings.TrimRight(out, "\n")
	m.mdCache[id] = out
	return out
}

// newMarkdownRenderer builds a glamour renderer for the given wrap width.
// Returns nil when construction fails; callers fall back to plain text.
func newMarkdownRenderer(width int, theme string) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(styles.GlamourStyle(theme)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}
